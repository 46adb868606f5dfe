// Package version holds the producer stamp written into exported models.
package version

// Producer is the producer_name of every exported model.
const Producer = "Born"

// Version is the producer_version. Release builds override it with
// -ldflags "-X github.com/born-ml/onnxport/internal/version.Version=v1.2.3".
var Version = "v0.1.0-dev"
