// Command xrd-s3 is the S3 object-store gateway daemon: it mounts the
// Object Store core (internal/s3core) behind an HTTP listener and exposes
// the access-key provisioning CLI an operator runs once per owner, since
// an owner's credential must exist in the directory before any of its
// requests can be SigV4-signed.
package main

import "github.com/cern-eos/xrdgojs3/cmd/xrd-s3/commands"

func main() {
	commands.Execute()
}
