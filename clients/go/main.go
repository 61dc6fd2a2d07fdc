// peerchat CLI - command line client for the peerchat server
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peerchat-io/peerchat/clients/go/peerchat"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("PEERCHAT_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := peerchat.NewClient(baseURL)
	client.UserID = os.Getenv("PEERCHAT_USER_ID")
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health()
		exitOnError(err)
		printJSON(resp)

	case "register":
		if len(os.Args) < 5 {
			fmt.Fprintln(os.Stderr, "Usage: peerchat register <email> <name> <password>")
			os.Exit(1)
		}
		user, err := client.Register(os.Args[2], os.Args[3], os.Args[4])
		exitOnError(err)
		fmt.Printf("Registered. Your user ID: %s\n", user.ID)
		fmt.Printf("Export it for later commands: export PEERCHAT_USER_ID=%s\n", user.ID)

	case "login":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: peerchat login <email> <password>")
			os.Exit(1)
		}
		user, err := client.Login(os.Args[2], os.Args[3])
		exitOnError(err)
		fmt.Printf("Logged in as %s (%s)\n", user.Name, user.ID)

	case "friends":
		entries, err := client.Friends()
		exitOnError(err)
		for _, e := range entries {
			state := "friend"
			if e.Pending && e.Incoming {
				state = "incoming request " + e.RequestID
			} else if e.Pending {
				state = "request sent"
			}
			fmt.Printf("  %s  %s <%s>  [%s] %s\n", e.User.ID, e.User.Name, e.User.Email, e.User.Status, state)
		}

	case "add-friend":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: peerchat add-friend <email>")
			os.Exit(1)
		}
		exitOnError(client.RequestFriend(os.Args[2]))
		fmt.Println("Friend request sent.")

	case "accept":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: peerchat accept <request-id>")
			os.Exit(1)
		}
		exitOnError(client.AcceptFriend(os.Args[2]))
		fmt.Println("Friend request accepted.")

	case "send":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: peerchat send <user-id> <message>")
			os.Exit(1)
		}
		msg, err := client.SendMessage(os.Args[2], strings.Join(os.Args[3:], " "), "text")
		exitOnError(err)
		fmt.Printf("Sent %s\n", msg.ID)

	case "history":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: peerchat history <user-id>")
			os.Exit(1)
		}
		msgs, err := client.Conversation(os.Args[2])
		exitOnError(err)
		printMessages(msgs)

	case "pending":
		msgs, err := client.PendingMessages()
		exitOnError(err)
		printMessages(msgs)

	case "listen":
		if client.UserID == "" {
			fmt.Fprintln(os.Stderr, "Set PEERCHAT_USER_ID or login first")
			os.Exit(1)
		}
		listen(baseURL, client.UserID)

	default:
		usage()
		os.Exit(1)
	}
}

// listen keeps a live websocket open, printing presence and messages until
// interrupted.
func listen(baseURL, userID string) {
	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/ws"

	mgr := peerchat.NewConnManager(wsURL, userID, peerchat.Handlers{
		OnState: func(s peerchat.ConnState) {
			fmt.Printf("-- %s\n", s)
		},
		OnRoster: func(roster []peerchat.RosterEntry) {
			names := make([]string, 0, len(roster))
			for _, e := range roster {
				names = append(names, e.Name)
			}
			fmt.Printf("-- online: %s\n", strings.Join(names, ", "))
		},
		OnMessage: func(msg peerchat.Message) {
			ts := time.UnixMilli(msg.Timestamp).Format("15:04:05")
			fmt.Printf("[%s] %s: %s\n", ts, msg.SenderID, msg.Content)
		},
		OnError: func(msg string) {
			fmt.Fprintf(os.Stderr, "server error: %s\n", msg)
		},
	})

	exitOnError(mgr.Start())
	defer mgr.Teardown()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}

func printMessages(msgs []peerchat.Message) {
	for _, msg := range msgs {
		ts := time.UnixMilli(msg.Timestamp).Format("2006-01-02 15:04:05")
		fmt.Printf("[%s] %s -> %s: %s\n", ts, msg.SenderID, msg.ReceiverID, msg.Content)
	}
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`peerchat - direct messaging with live presence

Usage: peerchat <command> [args]

Commands:
  health                              Check server health
  register <email> <name> <password>  Create an account
  login <email> <password>            Verify credentials
  friends                             List friends and requests
  add-friend <email>                  Send a friend request
  accept <request-id>                 Accept a friend request
  send <user-id> <message>            Send a direct message
  history <user-id>                   Show conversation history
  pending                             Drain queued messages
  listen                              Stay connected and print events

Environment:
  PEERCHAT_URL      Server base URL (default http://localhost:8080)
  PEERCHAT_USER_ID  Identity for authenticated commands`)
}
