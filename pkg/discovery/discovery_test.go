package discovery

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/jllopis/agora/pkg/a2a/agentcard"
	"github.com/jllopis/agora/pkg/config"
)

type staticProvider []AgentEndpoint

func (p staticProvider) List(context.Context) ([]AgentEndpoint, error) {
	return p, nil
}

func TestNewResolverRequiresProviders(t *testing.T) {
	if _, err := NewResolver(nil); err == nil {
		t.Fatal("expected error without providers")
	}
}

func TestResolverOrderAndDedupe(t *testing.T) {
	cfg := NewConfigProvider(config.RegistryConfig{Agents: []config.AgentEntry{
		{Name: "TellTimeAgent", URL: "http://localhost:10000"},
		{Name: "GreetingAgent", URL: " http://localhost:10001/ "},
	}})
	extra := staticProvider{
		{Name: "Clock", URL: "HTTP://LOCALHOST:10000/"},
		{URL: "http://localhost:10002"},
		{Name: "no-url"},
	}
	resolver, err := NewResolver(cfg, nil, extra)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}

	got, err := resolver.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []AgentEndpoint{
		{Name: "TellTimeAgent", URL: "http://localhost:10000"},
		{Name: "GreetingAgent", URL: "http://localhost:10001/"},
		{URL: "http://localhost:10002"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected endpoints\n got %+v\nwant %+v", got, want)
	}
	entries := ToEntries(got)
	if entries[0] != (agentcard.Entry{Name: "TellTimeAgent", URL: "http://localhost:10000"}) {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
}

func TestParseEndpoints(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    []AgentEndpoint
		wantErr bool
	}{
		{
			name: "json url list",
			doc:  `["http://localhost:10000", "http://localhost:10001"]`,
			want: []AgentEndpoint{{URL: "http://localhost:10000"}, {URL: "http://localhost:10001"}},
		},
		{
			name: "yaml mixed",
			doc:  "- http://a\n- name: Greeter\n  url: http://b\n",
			want: []AgentEndpoint{{URL: "http://a"}, {Name: "Greeter", URL: "http://b"}},
		},
		{name: "empty", doc: "  \n", want: nil},
		{name: "missing url", doc: "- name: x\n", wantErr: true},
		{name: "nested list", doc: "- [a, b]\n", wantErr: true},
		{name: "not a list", doc: "agents: 1\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEndpoints([]byte(tt.doc))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if len(got) != len(tt.want) || (len(got) > 0 && !reflect.DeepEqual(got, tt.want)) {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFileProviderMissingFile(t *testing.T) {
	provider, err := NewFileProvider(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	got, err := provider.List(context.Background())
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty list, got %+v %v", got, err)
	}
}

func TestFollowReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.json")
	if err := os.WriteFile(path, []byte(`["http://a"]`), 0o600); err != nil {
		t.Fatal(err)
	}
	file, err := NewFileProvider(path)
	if err != nil {
		t.Fatal(err)
	}
	resolver, _ := NewResolver(file)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan []AgentEndpoint, 4)
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, file, resolver, func(endpoints []AgentEndpoint) { updates <- endpoints })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`["http://a", {"name": "B", "url": "http://b"}]`), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-updates:
		if len(got) != 2 || got[1].Name != "B" {
			t.Fatalf("unexpected reload %+v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("expected a reload after the file changed")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("follow did not stop with the context")
	}
}
