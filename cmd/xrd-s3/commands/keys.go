package commands

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/cern-eos/xrdgojs3/internal/s3core/auth/directory"
	"github.com/cern-eos/xrdgojs3/internal/s3core/store/bucket"
)

// keysCmd is the credential-provisioning admin surface: an owner's access
// key must exist in the directory before any request can be SigV4-signed,
// so an operator runs this once per owner. Buckets themselves are created
// over plain authenticated HTTP (PUT /bucket) with that key.
var keysCmd = &cobra.Command{Use: "keys", Short: "manage owner access keys"}

var keysAddCmd = &cobra.Command{
	Use:   "add <owner-username>",
	Short: "provision a fresh access key for an owner identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysAdd,
}

func init() {
	keysCmd.AddCommand(keysAddCmd)
}

func runKeysAdd(cmd *cobra.Command, args []string) error {
	ownerName := args[0]

	// The owner must resolve to a real OS account, since every bucket it
	// creates is materialized under its (uid, gid).
	owner, err := bucket.ResolveOwner(ownerName, "")
	if err != nil {
		return err
	}

	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("Create access key for owner %q", owner.ID),
		IsConfirm: true,
	}
	if _, err := prompt.Run(); err != nil {
		return fmt.Errorf("aborted: %w", err)
	}

	accessKey, err := randomHex(10)
	if err != nil {
		return err
	}
	secretKey, err := randomHex(20)
	if err != nil {
		return err
	}

	dirCfg := directoryConfig()
	dirCfg.ApplyDefaults()
	dir, err := directory.New(&dirCfg)
	if err != nil {
		return err
	}

	rec := &directory.CredentialRecord{Owner: owner.ID, AccessKey: accessKey, SecretKey: secretKey}
	if err := dir.CreateCredential(context.Background(), rec); err != nil {
		return err
	}

	fmt.Printf("owner=%s access_key=%s secret_key=%s\n", owner.ID, accessKey, secretKey)
	return nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
