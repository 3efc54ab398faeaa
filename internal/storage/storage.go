// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"

	"markpilot/internal/model"
)

// Storage is the interface for all persistence operations outside the
// bookmark tree: subscriptions, the domain caches, click stats, and the
// key-value settings store.
type Storage interface {
	SaveSubscription(ctx context.Context, sub *model.Subscription) error
	GetSubscription(ctx context.Context, id string) (*model.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error

	AddDomains(ctx context.Context, kind model.DomainKind, values []string) error
	RemoveDomain(ctx context.Context, kind model.DomainKind, value string) error
	ListDomains(ctx context.Context, kind model.DomainKind) (map[string]bool, error)
	ClearDomains(ctx context.Context, kind model.DomainKind) error

	IncrementClick(ctx context.Context, url string) error
	SetClicks(ctx context.Context, url string, count int) error
	ClickStats(ctx context.Context) (map[string]int, error)

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	AllSettings(ctx context.Context) (map[string]string, error)

	// Clear wipes every table this store owns. Used by destructive import.
	Clear(ctx context.Context) error

	Close() error
}
