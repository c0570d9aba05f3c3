package mocks

//go:generate mockgen -destination=./mock_gateway.go -package=mocks github.com/jthadison/tmt-sub003/internal/broker Gateway
//go:generate mockgen -destination=./mock_engine.go -package=mocks github.com/jthadison/tmt-sub003/internal/engine ExecutionEngine
