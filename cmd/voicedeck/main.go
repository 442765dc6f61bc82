// voicedeck: interactive voice flashcard session in the terminal.
//
// Commands:
//
//	start            begin a realtime session with the selected provider
//	stop             end the session
//	reset            clear the conversation, keep the session open
//	provider <name>  switch provider (socket, rtc); stops any live session
//	text <message>   send a typed turn
//	cards            show the flashcard deck state
//	quit             exit
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/voicedeck/voicedeck/internal/config"
	"github.com/voicedeck/voicedeck/internal/log"
	"github.com/voicedeck/voicedeck/pkg/flashcards"
	"github.com/voicedeck/voicedeck/pkg/provider/rtclive"
	"github.com/voicedeck/voicedeck/pkg/provider/socketlive"
	"github.com/voicedeck/voicedeck/pkg/realtime"
	"github.com/voicedeck/voicedeck/pkg/session"
)

var providerFlag = flag.String("provider", "socket", "initial provider (socket, rtc)")

func main() {
	flag.Parse()
	log.Init(config.LogLevel())
	logger := log.L()

	store := flashcards.NewStore(flashcards.DemoDeck()...)

	factories := map[realtime.Provider]session.Factory{
		realtime.ProviderSocket: func() realtime.Adapter {
			return socketlive.New(socketlive.Options{Store: store, Logger: logger})
		},
		realtime.ProviderRTC: func() realtime.Adapter {
			return rtclive.New(rtclive.Options{Store: store, Logger: logger})
		},
	}

	initial := realtime.Provider(*providerFlag)
	if _, ok := factories[initial]; !ok {
		fmt.Fprintf(os.Stderr, "unknown provider %q\n", *providerFlag)
		os.Exit(1)
	}

	sess := session.New(initial, factories, logger)
	defer sess.Stop()

	unsubscribe := sess.Subscribe(func() {
		renderState(sess.State())
	})
	defer unsubscribe()

	fmt.Printf("voicedeck (provider %s). Type 'start' to begin, 'quit' to exit.\n", initial)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")

		switch cmd {
		case "start":
			if err := sess.Start(context.Background()); err != nil {
				fmt.Printf("start failed: %v\n", err)
			} else {
				fmt.Println("session active")
			}
		case "stop":
			sess.Stop()
			fmt.Println("session stopped")
		case "reset":
			sess.Reset()
			fmt.Println("conversation cleared")
		case "provider":
			p := realtime.Provider(strings.TrimSpace(rest))
			if _, ok := factories[p]; !ok {
				fmt.Printf("unknown provider %q (socket, rtc)\n", rest)
				continue
			}
			sess.SetProvider(p)
			fmt.Printf("provider set to %s\n", p)
		case "text":
			if strings.TrimSpace(rest) == "" {
				fmt.Println("usage: text <message>")
				continue
			}
			sess.SendUserText(rest)
		case "cards":
			renderDeck(store.Snapshot())
		case "quit", "exit":
			return
		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
	}
}

func renderState(state realtime.State) {
	if state.Err != nil {
		fmt.Printf("\n[error] %v\n> ", state.Err)
		return
	}
	if len(state.Chat) == 0 {
		return
	}
	last := state.Chat[len(state.Chat)-1]
	marker := ""
	if last.Streaming {
		marker = " …"
	}
	fmt.Printf("\n[%s] %s%s\n> ", last.Role, last.Text, marker)
}

func renderDeck(snap flashcards.Snapshot) {
	if snap.Card == nil {
		fmt.Println("deck is empty")
		return
	}
	side := snap.Card.Front
	face := "front"
	if snap.ShowBack {
		side = snap.Card.Back
		face = "back"
	}
	fmt.Printf("card %d/%d (%s): %s", snap.Index+1, snap.Total, face, side)
	if snap.Completed {
		fmt.Print("  [deck complete]")
	}
	fmt.Println()
}
