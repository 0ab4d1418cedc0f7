package kv_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/eburon/brokerdial/pkg/kv"
)

// stores returns every Store implementation, so each test covers both.
func stores(t *testing.T) map[string]kv.Store {
	t.Helper()
	b, err := kv.NewBadger(kv.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	disk, err := kv.NewBadger(kv.BadgerOptions{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewBadger(disk): %v", err)
	}
	m := kv.NewMemory()
	t.Cleanup(func() {
		b.Close()
		disk.Close()
		m.Close()
	})
	return map[string]kv.Store{"memory": m, "badger": b, "badger-disk": disk}
}

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := kv.Key{"lead", "1"}
			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("Get(missing) = %v", err)
			}
			if err := s.Set(ctx, key, []byte("a")); err != nil {
				t.Fatal(err)
			}
			if err := s.Set(ctx, key, []byte("b")); err != nil {
				t.Fatal(err)
			}
			got, err := s.Get(ctx, key)
			if err != nil || string(got) != "b" {
				t.Fatalf("Get = %q, %v", got, err)
			}
			if err := s.Delete(ctx, key); err != nil {
				t.Fatal(err)
			}
			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("Get after Delete = %v", err)
			}
			if err := s.Delete(ctx, kv.Key{"no", "such"}); err != nil {
				t.Fatalf("Delete(missing) = %v", err)
			}
		})
	}
}

func TestInvalidKey(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []kv.Key{nil, {"a", ""}, {"a:b"}} {
				if err := s.Set(ctx, k, nil); !errors.Is(err, kv.ErrInvalidKey) {
					t.Errorf("Set(%q) = %v, want ErrInvalidKey", k, err)
				}
			}
		})
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []kv.Key{{"lead", "2"}, {"lead", "1"}, {"leads", "x"}, {"task", "1"}} {
				if err := s.Set(ctx, k, []byte(k.String())); err != nil {
					t.Fatal(err)
				}
			}
			var got []string
			for e, err := range s.List(ctx, kv.Key{"lead"}) {
				if err != nil {
					t.Fatal(err)
				}
				if string(e.Value) != e.Key.String() {
					t.Errorf("value %q for key %q", e.Value, e.Key)
				}
				got = append(got, e.Key.String())
			}
			if want := []string{"lead:1", "lead:2"}; !slices.Equal(got, want) {
				t.Errorf("List(lead) = %v, want %v", got, want)
			}

			n := 0
			for range s.List(ctx, nil) {
				n++
			}
			if n != 4 {
				t.Errorf("List(all) = %d entries, want 4", n)
			}

			n = 0
			for range s.List(ctx, kv.Key{"lead"}) {
				n++
				break
			}
			if n != 1 {
				t.Errorf("early break yielded %d", n)
			}
		})
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := kv.Key{"counter"}
			var wg sync.WaitGroup
			for range 20 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := s.Update(ctx, key, func(old []byte) ([]byte, error) {
						var n int
						if old != nil {
							fmt.Sscanf(string(old), "%d", &n)
						}
						return []byte(fmt.Sprint(n + 1)), nil
					})
					if err != nil {
						t.Errorf("Update: %v", err)
					}
				}()
			}
			wg.Wait()
			got, _ := s.Get(ctx, key)
			if string(got) != "20" {
				t.Errorf("counter = %q, want 20", got)
			}

			boom := errors.New("boom")
			err := s.Update(ctx, key, func([]byte) ([]byte, error) { return nil, boom })
			if !errors.Is(err, boom) {
				t.Errorf("Update abort = %v", err)
			}
			got, _ = s.Get(ctx, key)
			if string(got) != "20" {
				t.Errorf("aborted update changed value to %q", got)
			}
		})
	}
}
