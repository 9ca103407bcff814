package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pressly/cli"

	"github.com/stefanvanburen/rpcpeer/internal/demo"
	"github.com/stefanvanburen/rpcpeer/rpc"
)

func main() {
	root := &cli.Command{
		Name:      "jsonrpcpeer-demo",
		ShortHelp: "A demo JSON-RPC peer exposing a CEL expression evaluator",
		SubCommands: []*cli.Command{
			{
				Name:      "serve",
				ShortHelp: "Attach a peer to stdin/stdout and serve EvalService",
				Exec: func(ctx context.Context, s *cli.State) error {
					return serve(ctx)
				},
			},
		},
	}
	if err := cli.ParseAndRun(context.Background(), root, os.Args[1:], nil); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// serve attaches a Peer to stdin/stdout with an EvalService target, the way
// cells' own lsp.Serve attaches a jsonrpc2.Conn to the same streams.
func serve(ctx context.Context) error {
	svc, err := demo.NewEvalService()
	if err != nil {
		return err
	}

	peer, err := rpc.Attach(os.Stdout, os.Stdin, svc, rpc.WithRequireTarget())
	if err != nil {
		return err
	}

	select {
	case <-peer.Done():
	case <-ctx.Done():
		peer.Shutdown()
	}
	return nil
}
