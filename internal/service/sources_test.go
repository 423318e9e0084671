package service

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/routeguard/routeguard/internal/domain/access"
)

func TestParseAccess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want access.AccessExpr
	}{
		{"single token", []string{"ROLE_ADMIN"}, access.Authorities("ROLE_ADMIN")},
		{"token list", []string{"ROLE_ADMIN", "ROLE_USER"}, access.Authorities("ROLE_ADMIN", "ROLE_USER")},
		{"reserved token", []string{"ANY_AUTHENTICATED_FULL"}, access.Authorities("ANY_AUTHENTICATED_FULL")},
		{"expression call", []string{"isAuthenticated()"}, access.Expression("isAuthenticated()")},
		{"expression with operator", []string{"isAuthenticated() or isRememberMe()"}, access.Expression("isAuthenticated() or isRememberMe()")},
		{"permitAll keyword", []string{"permitAll"}, access.Expression("permitAll")},
		{"denyAll keyword", []string{"denyAll"}, access.Expression("denyAll")},
		{"trims token whitespace", []string{" ROLE_ADMIN ", ""}, access.Authorities("ROLE_ADMIN")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseAccess(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseAccess(%v) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAnnotationSource_PreservesCase(t *testing.T) {
	t.Parallel()

	src := NewAnnotationSource([]access.Rule{
		{Pattern: "/Reports/Annual", Access: access.Authorities("ROLE_AUDITOR"), HTTPMethod: "get"},
	})

	rules, err := src.ListRules(context.Background())
	if err != nil {
		t.Fatalf("ListRules() error = %v", err)
	}
	if rules[0].Pattern != "/Reports/Annual" {
		t.Errorf("annotation pattern = %q, want case preserved", rules[0].Pattern)
	}
	if rules[0].HTTPMethod != "GET" {
		t.Errorf("annotation method = %q, want normalized to upper case", rules[0].HTTPMethod)
	}
	if rules[0].Source != access.SourceAnnotation {
		t.Errorf("annotation source kind = %s", rules[0].Source)
	}
	if src.SupportsLiveInvalidation() {
		t.Error("annotation source is read-only after startup")
	}
}

func TestInterceptMapSource_LowercasesPatterns(t *testing.T) {
	t.Parallel()

	src := NewInterceptMapSource([]access.RuleEntry{
		{Pattern: "/Admin/**", Access: []string{"ROLE_ADMIN"}, HTTPMethod: "post"},
	})

	rules, err := src.ListRules(context.Background())
	if err != nil {
		t.Fatalf("ListRules() error = %v", err)
	}
	if rules[0].Pattern != "/admin/**" {
		t.Errorf("pattern = %q, want lowercased", rules[0].Pattern)
	}
	if rules[0].HTTPMethod != "POST" {
		t.Errorf("method = %q, want POST", rules[0].HTTPMethod)
	}
	if rules[0].Source != access.SourceInterceptMap {
		t.Errorf("source kind = %s", rules[0].Source)
	}
}

// mockRequestmapStore implements access.RequestmapStore for testing.
type mockRequestmapStore struct {
	entries []access.RequestmapEntry
	err     error
}

func (m *mockRequestmapStore) ListEntries(_ context.Context) ([]access.RequestmapEntry, error) {
	if m.err != nil {
		return nil, m.err
	}
	return append([]access.RequestmapEntry{}, m.entries...), nil
}

func (m *mockRequestmapStore) GetEntry(_ context.Context, id string) (*access.RequestmapEntry, error) {
	for i := range m.entries {
		if m.entries[i].ID == id {
			return &m.entries[i], nil
		}
	}
	return nil, access.ErrEntryNotFound
}

func (m *mockRequestmapStore) SaveEntry(_ context.Context, e *access.RequestmapEntry) error {
	for i := range m.entries {
		if m.entries[i].ID == e.ID {
			m.entries[i] = *e
			return nil
		}
	}
	m.entries = append(m.entries, *e)
	return nil
}

func (m *mockRequestmapStore) DeleteEntry(_ context.Context, id string) error {
	for i := range m.entries {
		if m.entries[i].ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return access.ErrEntryNotFound
}

func TestRequestmapSource_ListRules(t *testing.T) {
	t.Parallel()

	store := &mockRequestmapStore{entries: []access.RequestmapEntry{
		{ID: "1", Pattern: "/Secure/**", Access: []string{"ROLE_ADMIN"}, HTTPMethod: "put"},
	}}
	src := NewRequestmapSource(store)

	rules, err := src.ListRules(context.Background())
	if err != nil {
		t.Fatalf("ListRules() error = %v", err)
	}
	if rules[0].Pattern != "/secure/**" {
		t.Errorf("pattern = %q, want lowercased", rules[0].Pattern)
	}
	if rules[0].HTTPMethod != "PUT" {
		t.Errorf("method = %q, want PUT", rules[0].HTTPMethod)
	}
	if !src.SupportsLiveInvalidation() {
		t.Error("requestmap source supports live invalidation")
	}
}

func TestRequestmapSource_StoreFailureIsSourceUnavailable(t *testing.T) {
	t.Parallel()

	store := &mockRequestmapStore{err: errors.New("connection refused")}
	src := NewRequestmapSource(store)

	_, err := src.ListRules(context.Background())
	if !errors.Is(err, access.ErrSourceUnavailable) {
		t.Errorf("ListRules() error = %v, want ErrSourceUnavailable", err)
	}
}
