package rpc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/MixinNetwork/tcpipc/config"
	"github.com/MixinNetwork/tcpipc/network"
	"github.com/MixinNetwork/tcpipc/storage"
)

var errNoJournal = errors.New("journal not enabled")

func getInfo(link Link, store storage.Store) (map[string]any, error) {
	info := make(map[string]any)
	info["version"] = config.BuildVersion
	info["id"] = link.Id()
	info["role"] = link.Role().String()
	info["running"] = link.Running()
	if addr := link.RemoteAddr(); addr != nil {
		info["remote"] = addr.String()
	}
	n, c := link.QueueStats()
	info["queue"] = map[string]any{
		"length":   n,
		"capacity": c,
	}
	info["metrics"] = link.Metrics().Snapshot()
	if store != nil {
		info["journal"] = store.LastSequence()
	}
	return info, nil
}

func sendMessage(link Link, store storage.Store, params []any) (map[string]any, error) {
	if len(params) != 2 {
		return nil, errors.New("invalid params count")
	}
	id, err := strconv.ParseUint(fmt.Sprint(params[0]), 10, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid message id %v", params[0])
	}
	payload, err := hex.DecodeString(fmt.Sprint(params[1]))
	if err != nil {
		return nil, fmt.Errorf("invalid message data %v", params[1])
	}
	m, err := network.NewMessage(uint8(id), payload)
	if err != nil {
		return nil, err
	}
	err = link.Send(m)
	if err != nil {
		return nil, err
	}

	result := map[string]any{"id": m.Id, "length": m.Len()}
	if store != nil {
		seq, err := store.WriteMessage(&storage.Record{
			Link:      link.Id(),
			Direction: storage.DirectionOut,
			Id:        m.Id,
			Payload:   m.Payload,
		})
		if err != nil {
			return nil, err
		}
		result["sequence"] = seq
	}
	return result, nil
}

func receiveMessage(link Link) (map[string]any, error) {
	m := link.Receive()
	if m == nil {
		return nil, nil
	}
	return messageMap(m.Id, m.Payload), nil
}

func listMessages(store storage.Store, params []any) ([]map[string]any, error) {
	if store == nil {
		return nil, errNoJournal
	}
	if len(params) != 2 {
		return nil, errors.New("invalid params count")
	}
	offset, err := strconv.ParseUint(fmt.Sprint(params[0]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid offset %v", params[0])
	}
	limit, err := strconv.ParseInt(fmt.Sprint(params[1]), 10, 64)
	if err != nil || limit <= 0 {
		return nil, fmt.Errorf("invalid limit %v", params[1])
	}
	if limit > config.JournalPageSize {
		limit = config.JournalPageSize
	}

	records, err := store.ReadMessages(offset, int(limit))
	if err != nil {
		return nil, err
	}
	messages := make([]map[string]any, len(records))
	for i, r := range records {
		m := messageMap(r.Id, r.Payload)
		m["sequence"] = r.Sequence
		m["link"] = r.Link
		m["direction"] = r.Direction
		m["timestamp"] = r.Timestamp
		messages[i] = m
	}
	return messages, nil
}

func messageMap(id uint8, payload []byte) map[string]any {
	return map[string]any{
		"id":     id,
		"length": len(payload),
		"data":   hex.EncodeToString(payload),
	}
}
