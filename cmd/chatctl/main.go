// Package main provides chatctl, the operator CLI for a running chat server.
//
//	chatctl [-addr host:port] [-token t] mod <username>
//	chatctl mods
//	chatctl kick <username>
//	chatctl announce <text...>
//	chatctl who
//	chatctl whois <username>
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cory-johannsen/tcpchat/internal/admin"
)

func main() {
	start := time.Now()

	addr := flag.String("addr", "127.0.0.1:50061", "admin gRPC address")
	token := flag.String("token", os.Getenv("CHAT_ADMIN_TOKEN"), "operator token (default $CHAT_ADMIN_TOKEN)")
	timeout := flag.Duration("timeout", 10*time.Second, "call timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] mod|mods|kick|announce|who|whois [args]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	client, err := admin.Dial(*addr, *token)
	if err != nil {
		log.Fatalf("connecting: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, client, args[0], args[1:]); err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
	fmt.Fprintf(os.Stderr, "[%s]\n", time.Since(start))
}

func run(ctx context.Context, c *admin.Client, cmd string, args []string) error {
	switch cmd {
	case "mod":
		if len(args) != 1 {
			return fmt.Errorf("expected one username")
		}
		on, err := c.Mod(ctx, args[0])
		if err != nil {
			return err
		}
		if on {
			fmt.Printf("%s is now a moderator\n", args[0])
		} else {
			fmt.Printf("%s is no longer a moderator\n", args[0])
		}
	case "mods":
		names, err := c.Mods(ctx)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("no moderators online")
			return nil
		}
		for _, n := range names {
			fmt.Println(n)
		}
	case "kick":
		if len(args) != 1 {
			return fmt.Errorf("expected one username")
		}
		if err := c.Kick(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("kicked %s\n", args[0])
	case "announce":
		return c.Announce(ctx, strings.Join(args, " "))
	case "who":
		sessions, err := c.Who(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ALIAS\tUSERNAME\tSTATE\tMOD\tPRIVATE\tSEAT\tREMOTE")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\t%s\t%s\n",
				s.Alias, s.Username, s.State, s.Moderator, s.Private, s.Seat, s.Remote)
		}
		return w.Flush()
	case "whois":
		if len(args) != 1 {
			return fmt.Errorf("expected one username")
		}
		s, err := c.Whois(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("alias:     %s\nusername:  %s\nstate:     %s\nmoderator: %t\nprivate:   %t\nseat:      %s\nremote:    %s\n",
			s.Alias, s.Username, s.State, s.Moderator, s.Private, s.Seat, s.Remote)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}
