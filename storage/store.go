package storage

const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Record is one journalled frame, Sequence is assigned by the store.
type Record struct {
	Link      string `msgpack:"L" json:"link"`
	Direction string `msgpack:"D" json:"direction"`
	Sequence  uint64 `msgpack:"S" json:"sequence"`
	Id        uint8  `msgpack:"I" json:"id"`
	Payload   []byte `msgpack:"P" json:"payload"`
	Timestamp uint64 `msgpack:"T" json:"timestamp"`
}

type Store interface {
	Close() error

	WriteMessage(rec *Record) (uint64, error)
	ReadMessages(offset uint64, limit int) ([]*Record, error)
	LastSequence() uint64
}
