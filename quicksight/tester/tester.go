// Package tester defines the per-resource provisioning step interface.
package tester

// Tester defines one provisioning step of the dashboard pipeline.
type Tester interface {
	// Name returns the name of the tester.
	Name() string
	// Create provisions the resource and validates it settled.
	Create() error
	// Delete removes the provisioned resource.
	Delete() error
}
