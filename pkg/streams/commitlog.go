package streams

import (
	"fmt"
	"strconv"
	"strings"
)

// Commit is one consumer offset record in the commit log. The key wire
// format is "topic:partition:group" and the value is the next offset to
// read, as a decimal string.
type Commit struct {
	Topic     string
	Partition int
	Group     string
	Offset    int64
}

func (c Commit) Key() []byte {
	return []byte(fmt.Sprintf("%s:%d:%s", c.Topic, c.Partition, c.Group))
}

func (c Commit) Value() []byte {
	return []byte(strconv.FormatInt(c.Offset, 10))
}

// DecodeCommit parses a commit log message. Keys with malformed partition
// numbers or missing fields are rejected; the consumer group may itself
// contain colons.
func DecodeCommit(key, value []byte) (Commit, error) {
	parts := strings.SplitN(string(key), ":", 3)
	if len(parts) != 3 {
		return Commit{}, fmt.Errorf("malformed commit log key %q", key)
	}
	partition, err := strconv.Atoi(parts[1])
	if err != nil {
		return Commit{}, fmt.Errorf("malformed partition in commit log key %q: %w", key, err)
	}
	offset, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return Commit{}, fmt.Errorf("malformed commit log offset %q: %w", value, err)
	}
	return Commit{
		Topic:     parts[0],
		Partition: partition,
		Group:     parts[2],
		Offset:    offset,
	}, nil
}
