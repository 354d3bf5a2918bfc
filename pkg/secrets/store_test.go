package secrets

import (
	"context"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, "adapter/pacs/api_key", "orthanc-token"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "adapter/pacs/api_key")
	if err != nil || got != "orthanc-token" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	if _, err := s.Get(ctx, "adapter/missing"); err == nil {
		t.Fatal("missing key should error")
	}

	_ = s.Set(ctx, "adapter/pacs/user", "gateway")
	keys, err := s.List(ctx, "adapter/pacs/")
	if err != nil || len(keys) != 2 {
		t.Fatalf("List = %v, %v", keys, err)
	}

	if err := s.Delete(ctx, "adapter/pacs/api_key"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "adapter/pacs/api_key"); err == nil {
		t.Fatal("deleted key should error")
	}
}

func TestEnvStoreKeyNormalization(t *testing.T) {
	s := NewEnvStore()
	ctx := context.Background()
	t.Setenv("ADAPTER_BILLING_API_KEY", "bill-secret")

	got, err := s.Get(ctx, "adapter:billing.api-key")
	if err != nil || got != "bill-secret" {
		t.Fatalf("Get = %q, %v", got, err)
	}
}

func TestNewStoreProviderSelection(t *testing.T) {
	s, err := NewStore(Config{Provider: "memory"})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, ok := s.(*memoryStore); !ok {
		t.Fatalf("provider memory yielded %T", s)
	}
	s, err = NewStore(Config{Provider: ""})
	if err != nil {
		t.Fatalf("NewStore default: %v", err)
	}
	if _, ok := s.(*envStore); !ok {
		t.Fatalf("default provider yielded %T", s)
	}
}
