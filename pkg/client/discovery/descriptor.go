// Package discovery invokes the cluster CLI to enumerate application
// descriptors.
package discovery

// Descriptor is the immutable, structurally-comparable description of one
// routable application, as declared by the cluster control plane.
//
// Equality is structural, but because of the slice field Ingresses a
// Descriptor is not comparable with ==; compare with Equal instead.
type Descriptor struct {
	ApplicationName string
	Ingresses       []string
	Liveness        string // empty means "no liveness path declared"
	Context         string
	Namespace       string
}

// Equal reports whether d and other describe the same application.
func (d Descriptor) Equal(other Descriptor) bool {
	if d.ApplicationName != other.ApplicationName ||
		d.Liveness != other.Liveness ||
		d.Context != other.Context ||
		d.Namespace != other.Namespace ||
		len(d.Ingresses) != len(other.Ingresses) {
		return false
	}
	for i, ingress := range d.Ingresses {
		if other.Ingresses[i] != ingress {
			return false
		}
	}
	return true
}
