/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Command yanscli is an illustrative client for talking to a running
// yansd's kng service over its frame protocol.
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sebcat/yans-go/internal/frame"
)

var (
	flagSocket string
	flagJobID  string
)

func main() {
	root := &cobra.Command{Use: "yanscli"}
	root.PersistentFlags().StringVar(&flagSocket, "socket", "/var/run/yansd/kng.sock", "kng service socket")

	root.AddCommand(startCmd(), statusCmd(), stopCmd(), logCmd())

	if err := root.Execute(); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

func dial() (*frame.Stream, error) {
	c, err := net.Dial("unix", flagSocket)
	if err != nil {
		return nil, err
	}
	return frame.NewStream(c), nil
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start [type] [args...]",
		Short: "start a job",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := dial()
			if err != nil {
				return err
			}
			defer s.Close()

			rest := make([]interface{}, 0, len(args)-1)
			for _, a := range args[1:] {
				rest = append(rest, a)
			}

			if err := s.WriteFrame(frame.Bag{
				"action": "start",
				"type":   args[0],
				"args":   rest,
			}); err != nil {
				return err
			}

			resp, err := s.ReadFrame()
			if err != nil {
				return err
			}

			if e := resp.String("error"); e != "" {
				color.Red("error: %s", e)
				return nil
			}

			color.Green("started job %s", resp.String("job_id"))
			return nil
		},
	}
	return cmd
}

func withJobID(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagJobID, "job-id", "", "job id")
	cmd.MarkFlagRequired("job-id")
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "query a job's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return roundTrip(frame.Bag{"action": "status", "job_id": flagJobID}, func(resp frame.Bag) {
				fmt.Printf("%s: %s\n", flagJobID, resp.String("status"))
			})
		},
	}
	withJobID(cmd)
	return cmd
}

func stopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "stop a running job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return roundTrip(frame.Bag{"action": "stop", "job_id": flagJobID}, func(resp frame.Bag) {
				color.Yellow("%s: %s", flagJobID, resp.String("status"))
			})
		},
	}
	withJobID(cmd)
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "print a job's accumulated output",
		RunE: func(cmd *cobra.Command, args []string) error {
			return roundTrip(frame.Bag{"action": "log", "job_id": flagJobID}, func(resp frame.Bag) {
				fmt.Print(resp.String("log"))
			})
		},
	}
	withJobID(cmd)
	return cmd
}

func roundTrip(req frame.Bag, onOK func(frame.Bag)) error {
	s, err := dial()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.WriteFrame(req); err != nil {
		return err
	}

	resp, err := s.ReadFrame()
	if err != nil {
		return err
	}

	if e := resp.String("error"); e != "" {
		color.Red("error: %s", e)
		return nil
	}

	onOK(resp)
	return nil
}
