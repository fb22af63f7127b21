// Package mocks holds gomock doubles for the interfaces in internal/ports.
//
// Regenerate after changing an interface:
//
//	go generate ./internal/mocks
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=object_store_mock.go github.com/dharsanguruparan/ReceiptDrop/internal/ports ObjectStore
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=image_cache_mock.go github.com/dharsanguruparan/ReceiptDrop/internal/ports ImageCache
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=extractor_mock.go github.com/dharsanguruparan/ReceiptDrop/internal/ports Extractor
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_queue_mock.go github.com/dharsanguruparan/ReceiptDrop/internal/ports JobQueue
