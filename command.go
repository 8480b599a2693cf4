package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/MixinNetwork/tcpipc/config"
	"github.com/MixinNetwork/tcpipc/logger"
	"github.com/MixinNetwork/tcpipc/network"
	"github.com/MixinNetwork/tcpipc/rpc"
	"github.com/MixinNetwork/tcpipc/storage"
	"github.com/urfave/cli/v2"
)

func loadCustom(c *cli.Context) (*config.Custom, error) {
	custom := config.DefaultCustom()
	if file := c.String("config"); file != "" {
		cc, err := config.Initialize(file)
		if err != nil {
			return nil, err
		}
		custom = cc
	}
	if c.IsSet("log") {
		custom.Log.Level = c.Int("log")
	}
	if f := c.String("filter"); f != "" {
		custom.Log.Filter = f
	}
	if l := c.Int("limiter"); l > 0 {
		custom.Log.Limiter = l
	}
	if p := c.Int("port"); p > 0 {
		custom.Link.Port = p
	}
	if a := c.String("address"); a != "" {
		custom.Link.Address = a
	}
	if u := c.String("unix"); u != "" {
		custom.Link.Unix = u
	}
	if j := c.String("journal"); j != "" {
		custom.Journal.Dir = j
	}
	if p := c.Int("rpc"); p > 0 {
		custom.RPC.Port = p
	}

	logger.SetLevel(custom.Log.Level)
	logger.SetLimiter(custom.Log.Limiter)
	err := logger.SetFilter(custom.Log.Filter)
	if err != nil {
		return nil, err
	}
	return custom, nil
}

func listenCmd(c *cli.Context) error {
	custom, err := loadCustom(c)
	if err != nil {
		return err
	}
	return runLink(custom, network.RoleServer)
}

func connectCmd(c *cli.Context) error {
	custom, err := loadCustom(c)
	if err != nil {
		return err
	}
	return runLink(custom, network.RoleClient)
}

func runCmd(c *cli.Context) error {
	custom, err := loadCustom(c)
	if err != nil {
		return err
	}
	role, err := network.ParseRole(custom.Link.Role)
	if err != nil {
		return err
	}
	return runLink(custom, role)
}

func openLink(ctx context.Context, custom *config.Custom, link *network.Link, role network.Role) error {
	if custom.Link.Unix == "" {
		return link.Open(ctx, role, custom.Link.Address, custom.Link.Port)
	}
	switch role {
	case network.RoleServer:
		return link.OpenTransport(ctx, role, network.NewUnixServer(custom.Link.Unix, custom.WriteDeadline()))
	case network.RoleClient:
		return link.OpenTransport(ctx, role, network.NewUnixClient(custom.Link.Unix, custom.WriteDeadline()))
	}
	return fmt.Errorf("invalid link role %s", role)
}

// runLink prints every received message and sends each stdin line until the
// peer disconnects, stdin closes or the process is interrupted. With an RPC
// port the queue is left to the RPC clients.
func runLink(custom *config.Custom, role network.Role) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store storage.Store
	if custom.Journal.Dir != "" {
		bs, err := storage.NewBadgerStore(custom.Journal.Dir)
		if err != nil {
			return err
		}
		defer bs.Close()
		store = bs
	}

	link := network.NewLink(custom)
	if store != nil {
		link.OnReceive = func(m *network.Message) {
			journalMessage(store, link.Id(), storage.DirectionIn, m)
		}
	}
	err := openLink(ctx, custom, link, role)
	if err != nil {
		return err
	}
	defer link.Close()

	if custom.RPC.Port > 0 {
		server := rpc.NewServer(link, store, custom.RPC.Port)
		go func() {
			err := server.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("RPC %s ERROR %s\n", server.Addr, err.Error())
			}
		}()
		defer server.Close()
		logger.Printf("RPC %s\n", server.Addr)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		defer cancel()
		err := sendLines(os.Stdin, link, store)
		if err != nil {
			logger.Printf("LINK %s STDIN %s\n", link.Id(), err.Error())
		}
	}()

	if custom.RPC.Port > 0 {
		select {
		case <-link.Done():
		case <-ctx.Done():
		}
		return linkResult(link)
	}
	for {
		m, err := link.ReceiveWait(ctx)
		if err != nil {
			return linkResult(link)
		}
		fmt.Println(m.String())
	}
}

func linkResult(link *network.Link) error {
	err := link.Err()
	if err == nil || errors.Is(err, network.ErrPeerClosed) || errors.Is(err, network.ErrClosed) {
		return nil
	}
	return err
}

func sendLines(r io.Reader, link *network.Link, store storage.Store) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		m, err := parseMessageLine(line)
		if err != nil {
			logger.Printf("INVALID INPUT %s %s\n", line, err.Error())
			continue
		}
		err = link.Send(m)
		if err != nil {
			return err
		}
		journalMessage(store, link.Id(), storage.DirectionOut, m)
	}
	return scanner.Err()
}

// parseMessageLine reads "ID HEX", the payload part is optional.
func parseMessageLine(line string) (*network.Message, error) {
	fields := strings.Fields(line)
	if len(fields) < 1 || len(fields) > 2 {
		return nil, fmt.Errorf("expect ID HEX")
	}
	id, err := strconv.ParseUint(fields[0], 10, 8)
	if err != nil {
		return nil, err
	}
	var payload []byte
	if len(fields) == 2 {
		payload, err = hex.DecodeString(fields[1])
		if err != nil {
			return nil, err
		}
	}
	return network.NewMessage(uint8(id), payload)
}

func journalMessage(store storage.Store, link, direction string, m *network.Message) {
	if store == nil {
		return
	}
	_, err := store.WriteMessage(&storage.Record{
		Link:      link,
		Direction: direction,
		Id:        m.Id,
		Payload:   m.Payload,
	})
	if err != nil {
		logger.Printf("JOURNAL %s %s ERROR %s\n", link, direction, err.Error())
	}
}

func sendCmd(c *cli.Context) error {
	custom, err := loadCustom(c)
	if err != nil {
		return err
	}
	if c.Uint("id") > 255 {
		return fmt.Errorf("invalid message id %d", c.Uint("id"))
	}
	payload, err := hex.DecodeString(c.String("data"))
	if err != nil {
		return err
	}
	m, err := network.NewMessage(uint8(c.Uint("id")), payload)
	if err != nil {
		return err
	}

	link := network.NewLink(custom)
	err = link.Open(c.Context, network.RoleClient, custom.Link.Address, custom.Link.Port)
	if err != nil {
		return err
	}
	defer link.Close()
	return link.Send(m)
}

func replayCmd(c *cli.Context) error {
	custom, err := loadCustom(c)
	if err != nil {
		return err
	}
	if custom.Journal.Dir == "" {
		return fmt.Errorf("journal directory required")
	}
	store, err := storage.NewBadgerStore(custom.Journal.Dir)
	if err != nil {
		return err
	}
	defer store.Close()

	link := network.NewLink(custom)
	err = link.Open(c.Context, network.RoleClient, custom.Link.Address, custom.Link.Port)
	if err != nil {
		return err
	}
	defer link.Close()

	var count int
	offset := c.Uint64("offset")
	for {
		records, err := store.ReadMessages(offset, config.JournalPageSize)
		if err != nil {
			return err
		}
		for _, r := range records {
			offset = r.Sequence + 1
			if r.Direction != storage.DirectionIn {
				continue
			}
			err = link.Send(&network.Message{Id: r.Id, Payload: r.Payload})
			if err != nil {
				return err
			}
			count++
		}
		if len(records) < config.JournalPageSize {
			break
		}
	}
	fmt.Printf("replayed %d messages\n", count)
	return nil
}

func journalCmd(c *cli.Context) error {
	custom, err := loadCustom(c)
	if err != nil {
		return err
	}
	if custom.Journal.Dir == "" {
		return fmt.Errorf("journal directory required")
	}
	store, err := storage.NewBadgerStore(custom.Journal.Dir)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.ReadMessages(c.Uint64("offset"), c.Int("limit"))
	if err != nil {
		return err
	}
	for _, r := range records {
		data, err := json.Marshal(map[string]any{
			"sequence":  r.Sequence,
			"link":      r.Link,
			"direction": r.Direction,
			"id":        r.Id,
			"data":      hex.EncodeToString(r.Payload),
			"timestamp": r.Timestamp,
		})
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	}
	return nil
}

func getInfoCmd(c *cli.Context) error {
	data, err := rpc.CallRPC(c.String("node"), "getinfo", []any{})
	if err == nil {
		fmt.Println(string(data))
	}
	return err
}

func sendMessageCmd(c *cli.Context) error {
	data, err := rpc.CallRPC(c.String("node"), "sendmessage", []any{
		c.Uint("id"),
		c.String("data"),
	})
	if err == nil {
		fmt.Println(string(data))
	}
	return err
}

func receiveMessageCmd(c *cli.Context) error {
	data, err := rpc.CallRPC(c.String("node"), "receivemessage", []any{})
	if err == nil {
		fmt.Println(string(data))
	}
	return err
}

func listMessagesCmd(c *cli.Context) error {
	data, err := rpc.CallRPC(c.String("node"), "listmessages", []any{
		c.Uint64("offset"),
		c.Int("limit"),
	})
	if err == nil {
		fmt.Println(string(data))
	}
	return err
}
