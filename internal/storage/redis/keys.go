package redis

import (
	"strconv"

	"github.com/goodtune/accesstime/internal/storage"
)

// keyspace builds the Redis key layout:
//
//	{prefix}:lock
//	{prefix}:settings
//	{prefix}:package:{id}     {prefix}:packages (set of ids)
//	{prefix}:session:{owner}
//	{prefix}:sequence:{owner}
//	{prefix}:order:{owner}/{seq}  {prefix}:orders:{owner} (zset scored by seq)
type keyspace struct {
	prefix string
}

func (k keyspace) lock() string     { return k.prefix + ":lock" }
func (k keyspace) settings() string { return k.prefix + ":settings" }
func (k keyspace) packages() string { return k.prefix + ":packages" }

func (k keyspace) pkg(id uint32) string {
	return k.prefix + ":package:" + strconv.FormatUint(uint64(id), 10)
}

func (k keyspace) session(owner string) string  { return k.prefix + ":session:" + owner }
func (k keyspace) sequence(owner string) string { return k.prefix + ":sequence:" + owner }
func (k keyspace) orders(owner string) string   { return k.prefix + ":orders:" + owner }

func (k keyspace) order(owner string, seq uint64) string {
	return k.prefix + ":order:" + storage.OrderKey(owner, seq)
}
