package shopstash

import (
	"github.com/ledgerline-co/shopstash/internal/codecs"
	"github.com/ledgerline-co/shopstash/internal/pg"
	"github.com/ledgerline-co/shopstash/schema"
)

type backend struct {
	exec     pg.Executor
	codec    codecs.Codec
	resolver *schema.Resolver
	gate     *schema.Bootstrap
}

// Backend hands the credential, session, and lifecycle stores their shared
// executor, codec, schema resolver, and readiness gate.
type Backend interface {
	DBExecutor() pg.Executor
	JSONCodec() codecs.Codec
	SchemaResolver() *schema.Resolver
	Gate() *schema.Bootstrap
}
