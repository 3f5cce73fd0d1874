// ABOUTME: Version information for Anomaly binaries
// ABOUTME: Shown by --version and logged at startup
package version

const (
	// Version is the software version
	Version = "0.3.0"

	// Product is the product name
	Product = "Anomaly"

	// Manufacturer is the publisher shown in version output
	Manufacturer = "Anomaly Engine"
)

// String returns the product and version for display
func String() string {
	return Product + " " + Version
}
