package badger

import (
	"encoding/binary"
	"fmt"
)

// Key layout:
//
//	d/<db>                                  database marker
//	t/<db>/<table>                          table metadata (JSON)
//	r/<db>/<table>/<partition>/<id:8B BE>   row values
const (
	databasePrefix = "d/"
	tablePrefix    = "t/"
	rowPrefix      = "r/"
)

func databaseKey(db string) []byte {
	return []byte(databasePrefix + db)
}

func tableKey(db, table string) []byte {
	return []byte(tablePrefix + db + "/" + table)
}

func tablesOfDatabase(db string) []byte {
	return []byte(tablePrefix + db + "/")
}

func rowsOfDatabase(db string) []byte {
	return []byte(rowPrefix + db + "/")
}

func rowsOfTable(db, table string) []byte {
	return []byte(rowPrefix + db + "/" + table + "/")
}

func rowsOfPartition(db, table string, partition int) []byte {
	return []byte(fmt.Sprintf("%s%s/%s/%d/", rowPrefix, db, table, partition))
}

// rowKey appends the big-endian id to a partition prefix.
func rowKey(prefix []byte, id int64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(id))
	return key
}

// idFromRowKey decodes the trailing id of a row key.
func idFromRowKey(key []byte) (int64, error) {
	if len(key) < 8 {
		return 0, fmt.Errorf("badger: malformed row key %q", key)
	}
	return int64(binary.BigEndian.Uint64(key[len(key)-8:])), nil
}

// encodeRow packs values as consecutive 8-byte big-endian integers.
func encodeRow(values []int64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint64(buf[8*i:], uint64(v))
	}
	return buf
}

func decodeRow(buf []byte) ([]int64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("badger: row value of %d bytes is not a multiple of 8", len(buf))
	}
	values := make([]int64, len(buf)/8)
	for i := range values {
		values[i] = int64(binary.BigEndian.Uint64(buf[8*i:]))
	}
	return values, nil
}
