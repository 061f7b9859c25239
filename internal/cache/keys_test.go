package cache

import "testing"

func TestKeyBuilder(t *testing.T) {
	tests := []struct {
		name string
		kb   *KeyBuilder
		got  func(*KeyBuilder) string
		want string
	}{
		{"link", NewKeyBuilder(""), func(k *KeyBuilder) string { return k.Link("abc123") }, "link:abc123"},
		{"namespaced link", NewKeyBuilder("edge"), func(k *KeyBuilder) string { return k.Link("abc123") }, "edge:link:abc123"},
		{"clicks", NewKeyBuilder(""), func(k *KeyBuilder) string { return k.Clicks("abc123") }, "clicks:abc123"},
		{"rate", NewKeyBuilder(""), func(k *KeyBuilder) string { return k.RateLimit("unlock", "abc123|1.2.3.4") }, "rate:unlock:abc123|1.2.3.4"},
		{"abtest", NewKeyBuilder("edge"), func(k *KeyBuilder) string { return k.ABTest("t1") }, "edge:abtest:t1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.got(tt.kb); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
