package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescriptorEqual(t *testing.T) {
	base := Descriptor{
		ApplicationName: "myapp",
		Ingresses:       []string{"https://myapp.example.com", "https://myapp.example.com/api"},
		Liveness:        "/healthz",
		Context:         "dev-fss",
		Namespace:       "default",
	}

	tests := []struct {
		name  string
		other Descriptor
		want  bool
	}{
		{"identical", base, true},
		{"different name", withName(base, "otherapp"), false},
		{"different liveness", withLiveness(base, "/alive"), false},
		{"different context", withContext(base, "prod-fss"), false},
		{"different namespace", withNamespace(base, "tbd"), false},
		{"different ingress count", Descriptor{
			ApplicationName: base.ApplicationName,
			Ingresses:       base.Ingresses[:1],
			Liveness:        base.Liveness,
			Context:         base.Context,
			Namespace:       base.Namespace,
		}, false},
		{"different ingress value", Descriptor{
			ApplicationName: base.ApplicationName,
			Ingresses:       []string{"https://myapp.example.com", "https://other.example.com"},
			Liveness:        base.Liveness,
			Context:         base.Context,
			Namespace:       base.Namespace,
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Equal(tt.other))
		})
	}
}

func withName(d Descriptor, name string) Descriptor {
	d.ApplicationName = name
	return d
}

func withLiveness(d Descriptor, liveness string) Descriptor {
	d.Liveness = liveness
	return d
}

func withContext(d Descriptor, context string) Descriptor {
	d.Context = context
	return d
}

func withNamespace(d Descriptor, namespace string) Descriptor {
	d.Namespace = namespace
	return d
}
