// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command rpcpeer-echo is a small end-to-end exercise of the peer
// engine over a Unix-domain stream socket: serve answers every request
// by emitting one update, waiting for the caller's first update and
// echoing that update's body back as the response body; call issues one
// request plus one update carrying the same message and prints every
// update plus the final response.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"code.hybscloud.com/rpcpeer"
	"code.hybscloud.com/rpcpeer/listener"
	"code.hybscloud.com/rpcpeer/peer"
	"code.hybscloud.com/rpcpeer/rpclog"
	"code.hybscloud.com/rpcpeer/transport"
)

func main() {
	root := &cobra.Command{
		Use:   "rpcpeer-echo",
		Short: "Echo server/client exercising the rpcpeer peer engine over a Unix socket.",
	}
	root.AddCommand(serveCmd(), callCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func errBody(text string) transport.StreamBody {
	return transport.NewStreamBody([]byte(text))
}

func serveCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen on a Unix-domain stream socket and echo every request.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = os.Remove(path)
			factory, err := transport.ListenUnixStream(path, 0)
			if err != nil {
				return err
			}
			defer factory.Close()

			ln := listener.Bind[transport.StreamBody](listener.UnixStream{UnixStreamFactory: factory}, errBody)
			log := rpclog.Std()
			log.Infof("listening on %s", path)

			ctx := cmd.Context()
			for {
				ph, err := ln.Accept(ctx)
				if err != nil {
					return err
				}
				go serveConn(ctx, ph)
			}
		},
	}
	cmd.Flags().StringVar(&path, "socket", "/tmp/rpcpeer-echo.sock", "Unix socket path to listen on")
	return cmd
}

func serveConn(ctx context.Context, ph *peer.PeerHandle[transport.StreamBody]) {
	defer ph.Close()
	log := rpclog.Std()
	for {
		item, rerr := ph.Recv(ctx)
		if rerr != nil {
			log.WithError(rerr).Info("connection closed")
			return
		}
		if item.Request == nil {
			continue
		}
		go handleRequest(ctx, item.Request)
	}
}

func handleRequest(ctx context.Context, req *peer.ReceivedRequestHandle[transport.StreamBody]) {
	defer req.Close()
	log := rpclog.ForRequest(req.ID(), "received")

	if err := req.SendUpdate(ctx, transport.NewStreamBody([]byte("echoing"))); err != nil {
		log.WithError(err).Warn("send_update failed")
		return
	}

	body, rerr := req.RecvUpdate(ctx)
	if rerr != nil {
		if !rerr.Is(rpcpeer.NewError(rpcpeer.KindPeerClosed, nil)) {
			log.WithError(rerr).Warn("recv_update failed")
		}
		return
	}

	if err := req.SendResponse(ctx, 0, body); err != nil {
		log.WithError(err).Warn("send_response failed")
	}
}

func callCmd() *cobra.Command {
	var path, message string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Dial a running rpcpeer-echo server, issue one request, print its updates and response.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			t, err := transport.DialUnixStream(ctx, path, 0)
			if err != nil {
				return err
			}
			ph := peer.New[transport.StreamBody](t, errBody)
			defer ph.Close()

			req, rerr := ph.SendRequest(ctx, 1, transport.NewStreamBody([]byte(message)))
			if rerr != nil {
				return rerr
			}

			if err := req.SendUpdate(ctx, transport.NewStreamBody([]byte(message))); err != nil {
				return err
			}

			for {
				body, isResponse, rerr := req.RecvUpdate(ctx)
				if rerr != nil {
					return rerr
				}
				if isResponse {
					break
				}
				fmt.Printf("update: %s\n", body.Bytes())
			}

			status, body, rerr := req.RecvResponse(ctx)
			if rerr != nil {
				return fmt.Errorf("response status %d: %w", status, rerr)
			}
			fmt.Printf("response: %s\n", body.Bytes())
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "socket", "/tmp/rpcpeer-echo.sock", "Unix socket path to dial")
	cmd.Flags().StringVar(&message, "message", "hello", "message body to send")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "overall call timeout")
	return cmd
}
