// Command areq is a small curl-alike over the areq client, mostly
// useful for poking at servers and demonstrating the library.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/areq-dev/areq"
)

type headerFlags []string

func (h *headerFlags) String() string { return strings.Join(*h, ", ") }

func (h *headerFlags) Set(v string) error {
	*h = append(*h, v)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run exits 0 on a completed exchange regardless of status code, 1 on
// a transport or protocol failure and 2 on bad usage.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("areq", flag.ContinueOnError)
	fs.SetOutput(stderr)
	method := fs.String("X", "GET", "request method")
	verbose := fs.Bool("v", false, "print the request method and URL and the response head to stderr")
	include := fs.Bool("i", false, "include the response head in the output")
	output := fs.String("o", "", "write the body to a file instead of stdout")
	data := fs.String("d", "", "request body, @file reads it from a file")
	agent := fs.String("A", "", "User-Agent header value")
	var hdrs headerFlags
	fs.Var(&hdrs, "H", "extra header as \"Name: value\", repeatable")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: areq [flags] url")
		fs.PrintDefaults()
		return 2
	}

	req := &areq.Request{Method: *method, URL: fs.Arg(0), Header: &areq.Headers{}}
	for _, h := range hdrs {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			fmt.Fprintf(stderr, "areq: malformed header %q\n", h)
			return 2
		}
		if err := req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value)); err != nil {
			fmt.Fprintf(stderr, "areq: %v\n", err)
			return 2
		}
	}
	if *agent != "" {
		req.Header.Set("User-Agent", *agent)
	}
	if *data != "" {
		if rest, ok := strings.CutPrefix(*data, "@"); ok {
			b, err := os.ReadFile(rest)
			if err != nil {
				fmt.Fprintf(stderr, "areq: %v\n", err)
				return 2
			}
			req.Body = b
		} else {
			req.Body = *data
		}
		if req.Method == "GET" {
			req.Method = "POST"
		}
	}

	client := &areq.Client{}
	defer client.Close()

	if *verbose {
		fmt.Fprintf(stderr, "> %s %s\n", req.Method, req.URL)
	}
	resp, err := client.Do(context.Background(), req)
	if err != nil {
		fmt.Fprintf(stderr, "areq: %v\n", err)
		return 1
	}
	if *verbose {
		fmt.Fprintf(stderr, "< %s %d %s\n", resp.Proto, resp.StatusCode, resp.Status)
		resp.Header.Range(func(name, value string) bool {
			fmt.Fprintf(stderr, "< %s: %s\n", name, value)
			return true
		})
	}

	out := io.Writer(stdout)
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(stderr, "areq: %v\n", err)
			return 1
		}
		defer f.Close()
		out = f
	}
	if *include {
		fmt.Fprintf(out, "%s %d %s\r\n", resp.Proto, resp.StatusCode, resp.Status)
		resp.Header.Range(func(name, value string) bool {
			fmt.Fprintf(out, "%s: %s\r\n", name, value)
			return true
		})
		fmt.Fprint(out, "\r\n")
	}
	out.Write(resp.Content)
	return 0
}
