package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/caioluan/tabchat/internal/config"
	"github.com/caioluan/tabchat/internal/profile"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	addrFlag := flag.String("addr", "", "daemon address (overrides config)")
	jsonFlag := flag.Bool("json", false, "output raw JSON")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	addr := *addrFlag
	if addr == "" {
		cfg, err := config.Load(profile.ConfigPath())
		if err != nil {
			cfg = config.Default()
		}
		addr = cfg.HTTP.ListenAddr
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := &client{base: "http://" + addr, http: &http.Client{Timeout: 10 * time.Second}, jsonOut: *jsonFlag}

	switch args[0] {
	case "status":
		c.get("/healthz")
	case "signin":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: tabchatctl signin <phone> [<code>]")
			os.Exit(1)
		}
		if len(args) == 2 {
			c.post("/v1/auth/otp/send", map[string]string{"phone": args[1]})
		} else {
			c.post("/v1/auth/otp/verify", map[string]string{"phone": args[1], "code": args[2]})
		}
	case "signout":
		c.post("/v1/auth/signout", nil)
	case "me":
		c.get("/v1/me")
	case "chats":
		c.get("/v1/conversations")
	case "chat":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: tabchatctl chat <other-user-id>")
			os.Exit(1)
		}
		c.post("/v1/conversations", map[string]string{"other_user_id": args[1]})
	case "tabs":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: tabchatctl tabs <conversation-id>")
			os.Exit(1)
		}
		c.get("/v1/conversations/" + args[1] + "/tabs")
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: tabchatctl messages <tab-id>")
			os.Exit(1)
		}
		c.get("/v1/tabs/" + args[1] + "/messages")
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: tabchatctl send <tab-id> <text>")
			os.Exit(1)
		}
		c.post("/v1/tabs/"+args[1]+"/messages", map[string]string{"content": args[2]})
	case "detect":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: tabchatctl detect <tab-id>")
			os.Exit(1)
		}
		c.post("/v1/tabs/"+args[1]+"/detect", nil)
	case "presence":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: tabchatctl presence <user-id>")
			os.Exit(1)
		}
		c.get("/v1/users/" + args[1] + "/presence")
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: tabchatctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                    Check the daemon")
	fmt.Fprintln(os.Stderr, "  signin <phone> [<code>]   Request or verify an OTP code")
	fmt.Fprintln(os.Stderr, "  signout                   Sign out of the profile")
	fmt.Fprintln(os.Stderr, "  me                        Show the signed-in user")
	fmt.Fprintln(os.Stderr, "  chats                     List conversations")
	fmt.Fprintln(os.Stderr, "  chat <user-id>            Open the conversation with a user")
	fmt.Fprintln(os.Stderr, "  tabs <conversation-id>    List a conversation's tabs")
	fmt.Fprintln(os.Stderr, "  messages <tab-id>         List a tab's messages")
	fmt.Fprintln(os.Stderr, "  send <tab-id> <text>      Send a text message")
	fmt.Fprintln(os.Stderr, "  detect <tab-id>           Force topic detection on a tab")
	fmt.Fprintln(os.Stderr, "  presence <user-id>        Show a user's presence")
}

type client struct {
	base    string
	http    *http.Client
	jsonOut bool
}

func (c *client) get(path string) {
	resp, err := c.http.Get(c.base + path)
	c.render(resp, err)
}

func (c *client) post(path string, payload map[string]string) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		body = bytes.NewReader(raw)
	}
	resp, err := c.http.Post(c.base+path, "application/json", body)
	c.render(resp, err)
}

func (c *client) render(resp *http.Response, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot reach daemon: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fmt.Fprintf(os.Stderr, "error: http %d: %s\n", resp.StatusCode, bytes.TrimSpace(raw))
		os.Exit(1)
	}

	if c.jsonOut {
		fmt.Println(string(raw))
		return
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		fmt.Println(string(raw))
		return
	}
	pretty, _ := json.MarshalIndent(parsed, "", "  ")
	fmt.Println(string(pretty))
}
