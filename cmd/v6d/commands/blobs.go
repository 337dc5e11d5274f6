// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/BSWANG/v6d/lib/cli"
	"github.com/BSWANG/v6d/lib/client"
	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/objmeta"
)

// bytesTypeName is the typename of the objects put creates: a "data"
// blob member and a "size" attribute.
const bytesTypeName = "bytes"

// --- put ---

func putCommand() *cli.Command {
	var (
		conn    connection
		name    string
		persist bool
	)
	return &cli.Command{
		Name:    "put",
		Summary: "Store a file as a bytes object",
		Description: `Copy FILE (or stdin when FILE is "-") into a new blob and wrap it in
a "bytes" object. Over IPC the contents are written straight into
shared memory; over RPC they are sent as a payload. Prints the new
object's id.`,
		Usage: "v6d put FILE [flags]",
		Examples: []cli.Example{
			{Description: "Store a file under a name", Command: "v6d put model.bin --name models/latest --persist"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := conn.flags("put", false)
			flagSet.StringVar(&name, "name", "", "bind this name to the new object")
			flagSet.BoolVar(&persist, "persist", false, "persist the new object to the cluster")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, "v6d put FILE [flags]"); err != nil {
				return err
			}
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			return conn.session(ctx, func(ctx context.Context, session client.Client) error {
				blobID, err := storeBlob(ctx, session, data)
				if err != nil {
					return err
				}
				meta := objmeta.New(bytesTypeName)
				if err := meta.AddMember("data", blobID); err != nil {
					return err
				}
				if err := meta.SetAttribute("size", len(data)); err != nil {
					return err
				}
				created, err := session.CreateMetadata(ctx, meta)
				if err != nil {
					return err
				}
				if persist {
					if err := session.Persist(ctx, created.ID()); err != nil {
						return err
					}
				}
				if name != "" {
					if err := session.PutName(ctx, name, created.ID()); err != nil {
						return err
					}
				}
				fmt.Fprintln(stdout, created.ID())
				return nil
			})
		},
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// storeBlob writes data into a sealed blob on the connected instance.
func storeBlob(ctx context.Context, session client.Client, data []byte) (objectid.ObjectID, error) {
	switch session := session.(type) {
	case *client.IPCClient:
		builder, err := session.CreateBlob(ctx, int64(len(data)))
		if err != nil {
			return objectid.InvalidObjectID, err
		}
		if err := builder.Copy(0, data, client.DefaultCopyConcurrency); err != nil {
			builder.Abort(ctx)
			return objectid.InvalidObjectID, err
		}
		blob, err := builder.Seal(ctx)
		if err != nil {
			return objectid.InvalidObjectID, err
		}
		return blob.ID(), nil
	case *client.RPCClient:
		return session.CreateRemoteBlob(ctx, client.WrapRemoteBlobBuilder(data))
	default:
		return objectid.InvalidObjectID, fmt.Errorf("unsupported session %T", session)
	}
}

// --- get ---

func getCommand() *cli.Command {
	var (
		conn   connection
		output string
	)
	return &cli.Command{
		Name:    "get",
		Summary: "Write a bytes object's contents out",
		Description: `Write the contents of ID to stdout, or to --output. ID is a "bytes"
object created by put, or a blob.`,
		Usage: "v6d get ID [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := conn.flags("get", false)
			flagSet.StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, "v6d get ID [flags]"); err != nil {
				return err
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return conn.session(ctx, func(ctx context.Context, session client.Client) error {
				blobID := ids[0]
				if !blobID.IsBlob() {
					meta, err := session.GetMeta(ctx, blobID, false)
					if err != nil {
						return err
					}
					if meta.TypeName() != bytesTypeName {
						return fmt.Errorf("%s is a %s, not a %s object", blobID, meta.TypeName(), bytesTypeName)
					}
					if blobID, err = meta.GetMemberID("data"); err != nil {
						return err
					}
				}
				data, err := loadBlob(ctx, session, blobID)
				if err != nil {
					return err
				}
				if output == "" {
					_, err = stdout.Write(data)
					return err
				}
				return os.WriteFile(output, data, 0o644)
			})
		},
	}
}

// loadBlob returns the contents of a sealed blob.
func loadBlob(ctx context.Context, session client.Client, id objectid.ObjectID) ([]byte, error) {
	switch session := session.(type) {
	case *client.IPCClient:
		blob, err := session.GetBlob(ctx, id, false)
		if err != nil {
			return nil, err
		}
		return blob.Bytes(), nil
	case *client.RPCClient:
		blob, err := session.GetRemoteBlob(ctx, id, false)
		if err != nil {
			return nil, err
		}
		return blob.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported session %T", session)
	}
}
