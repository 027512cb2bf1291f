package mocks

//go:generate mockgen -destination=./mock_brokerage.go -package=mocks github.com/rxtech-lab/argo-engine/internal/brokerage Brokerage
//go:generate mockgen -destination=./mock_fundamentals.go -package=mocks github.com/rxtech-lab/argo-engine/internal/universe FineFundamentalProvider
//go:generate mockgen -destination=./mock_subscription_service.go -package=mocks github.com/rxtech-lab/argo-engine/internal/universe SubscriptionService
