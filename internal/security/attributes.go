package security

// Attributes are the ownership facts the policy needs about a path.
type Attributes struct {
	UID uint32
	// Restricted is set for items the OS refuses to let even root modify
	// (the SF_RESTRICTED flag on macOS).
	Restricted bool
}

// AttributeInspector reads Attributes without following a final symlink.
type AttributeInspector interface {
	Inspect(path string) (Attributes, error)
}

// SystemInspector reads attributes with lstat(2).
type SystemInspector struct{}

// InspectorFunc adapts a function to AttributeInspector.
type InspectorFunc func(path string) (Attributes, error)

// Inspect calls f(path).
func (f InspectorFunc) Inspect(path string) (Attributes, error) {
	return f(path)
}
