package mocks

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Provider --dir ../domain/roster --output domain/roster --outpkg rostermock --filename provider_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Feed --dir ../domain/gameevent --output domain/gameevent --outpkg gameeventmock --filename feed_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Repository --dir ../domain/kvstore --output domain/kvstore --outpkg kvstoremock --filename repository_mock.go
