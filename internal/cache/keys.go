package cache

// KeyPrefix - префиксы для разных типов ключей
type KeyPrefix string

const (
	PrefixLink      KeyPrefix = "link"   // link:slug
	PrefixClicks    KeyPrefix = "clicks" // clicks:slug
	PrefixRateLimit KeyPrefix = "rate"   // rate:operation:identifier
	PrefixABTest    KeyPrefix = "abtest" // abtest:testID -> hash variant => clicks
)

// KeyBuilder - построитель ключей кэша
type KeyBuilder struct {
	namespace string // Опциональный namespace для multi-tenancy
}

// NewKeyBuilder создает новый построитель ключей
func NewKeyBuilder(namespace string) *KeyBuilder {
	return &KeyBuilder{namespace: namespace}
}

// Build создает ключ с префиксом и опциональным namespace
func (k *KeyBuilder) Build(prefix KeyPrefix, parts ...string) string {
	key := string(prefix)

	if k.namespace != "" {
		key = k.namespace + ":" + key
	}

	for _, part := range parts {
		key += ":" + part
	}

	return key
}

// Link создает ключ для записи ссылки по slug
func (k *KeyBuilder) Link(slug string) string {
	return k.Build(PrefixLink, slug)
}

// Clicks создает ключ для счетчика кликов
func (k *KeyBuilder) Clicks(slug string) string {
	return k.Build(PrefixClicks, slug)
}

// RateLimit создает ключ для rate limiting
func (k *KeyBuilder) RateLimit(operation, identifier string) string {
	return k.Build(PrefixRateLimit, operation, identifier)
}

// ABTest is the hash of per-variant click counters for one test.
func (k *KeyBuilder) ABTest(testID string) string {
	return k.Build(PrefixABTest, testID)
}
