// Package redisstore implements credstore.Store on Redis.
//
// # Layout
//
// Each record is a Redis hash; times are unix milliseconds.
//
//   - <prefix>:otc:<userID>: the single outstanding one-time code of a user
//   - <prefix>:ak:<keyID>  : API key, indexed by <prefix>:aku:<userID> (ZSET by creation time)
//   - <prefix>:ss:<id>     : session, indexed by <prefix>:ssu:<userID> (ZSET by creation time)
//
// Multi-field mutations run as Lua scripts or MULTI transactions so that each
// credstore operation is a single atomic step on the server.
//
// # What this package must NOT do
//
//   - Compare secrets; scripts compare opaque ids only.
//   - Keep state outside Redis.
package redisstore
