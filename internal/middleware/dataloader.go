package middleware

import (
	"context"
	"net/http"

	"github.com/graph-gophers/dataloader"

	"github.com/rpattn/rentalvc/internal/repository"
	"github.com/rpattn/rentalvc/internal/versionloader"
)

type ctxKey string

const versionLoaderKey ctxKey = "versionLoader"

// DataLoaderMiddleware attaches a current-version dataloader to the request context
func DataLoaderMiddleware(repo repository.VersionRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := versionloader.NewVersionLoader(repo)

			// Store the underlying dataloader.Loader in context
			ctx := context.WithValue(r.Context(), versionLoaderKey, loader.Loader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// VersionLoaderFromContext retrieves the dataloader from context
func VersionLoaderFromContext(ctx context.Context) *dataloader.Loader {
	if l, ok := ctx.Value(versionLoaderKey).(*dataloader.Loader); ok {
		return l
	}
	return nil
}
