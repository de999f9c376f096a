package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/seat-booking-core/internal/clock"
	"github.com/iliyamo/seat-booking-core/internal/handler"
	"github.com/iliyamo/seat-booking-core/internal/notifier"
	"github.com/iliyamo/seat-booking-core/internal/repository"
	"github.com/iliyamo/seat-booking-core/internal/service"
)

func newDeps(limited, cached *int) Deps {
	clk := clock.NewFake(time.Date(2026, 6, 1, 19, 0, 0, 0, time.UTC))
	store := repository.NewMemoryStore(clk)
	catalog := repository.NewMemoryCatalog(repository.GridLayout(1, 2, 2, "STANDARD", 500))
	hub := notifier.NewHub(notifier.Config{}, clk, nil)
	svc := service.NewBookingService(store, catalog, hub, nil, clk, service.DefaultConfig(), nil)
	count := func(n *int) echo.MiddlewareFunc {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				*n++
				return next(c)
			}
		}
	}
	return Deps{
		Booking:   handler.NewBookingHandler(svc, nil),
		SeatFeed:  handler.NewSeatEventsHandler(hub, svc, nil),
		Health:    handler.NewHealthHandler(nil, nil, hub.Rooms),
		JWTSecret: "secret",
		RateLimit: count(limited),
		Cache:     count(cached),
	}
}

func TestRegister_Routes(t *testing.T) {
	var limited, cached int
	e := echo.New()
	Register(e, newDeps(&limited, &cached))

	got := map[string]bool{}
	for _, r := range e.Routes() {
		got[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /healthz",
		"GET /v1/showings/:id/seats",
		"GET /v1/showings/:id/layout",
		"GET /v1/showings/:id/events",
		"POST /v1/showings/:id/sessions",
		"GET /v1/sessions/:id",
		"GET /v1/sessions/:id/remaining",
		"POST /v1/sessions/:id/seats",
		"PUT /v1/sessions/:id/seats",
		"DELETE /v1/sessions/:id/seats/:row/:col",
		"POST /v1/sessions/:id/confirm",
		"POST /v1/sessions/:id/cancel",
	} {
		assert.True(t, got[want], want)
	}
}

func TestRegister_Middleware(t *testing.T) {
	var limited, cached int
	e := echo.New()
	Register(e, newDeps(&limited, &cached))

	serve := func(method, path string) int {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, serve(http.MethodGet, "/healthz"))
	assert.Equal(t, http.StatusOK, serve(http.MethodGet, "/v1/showings/1/layout"))
	assert.Equal(t, 1, cached)

	// JWTAuth rejects before the limiter runs
	assert.Equal(t, http.StatusUnauthorized, serve(http.MethodPost, "/v1/showings/1/sessions"))
	assert.Equal(t, 0, limited)

	// reads are not cached or limited
	assert.Equal(t, http.StatusOK, serve(http.MethodGet, "/v1/showings/1/seats"))
	assert.Equal(t, 1, cached)
}

func TestRegister_NilOptionalMiddleware(t *testing.T) {
	d := newDeps(new(int), new(int))
	d.RateLimit, d.Cache = nil, nil
	e := echo.New()
	Register(e, d)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/showings/1/layout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
