package idgen

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/bwmarrin/snowflake"
)

// Invoice and order ids are built on snowflake ids so they are unique across
// instances, roughly time ordered and do not leak donation volume.
//
//   invoice:  DON_<first three letters of the campaign slug><base36 id>
//   order id: TRX<base36 id>

var (
	node     *snowflake.Node
	nodeErr  error
	initOnce sync.Once
)

// Init sets the worker id used by this process. It must be called before the
// first id is generated; later calls are ignored.
func Init(workerID int64) error {
	initOnce.Do(func() {
		node, nodeErr = snowflake.NewNode(workerID)
	})
	return nodeErr
}

// NextID returns the next snowflake id, initialising worker 1 when Init was
// never called.
func NextID() snowflake.ID {
	if err := Init(1); err != nil {
		panic(fmt.Sprintf("idgen: %v", err))
	}
	return node.Generate()
}

// GenerateInvoice returns a merchant-facing invoice number for a donation to
// the campaign identified by slug.
func GenerateInvoice(slug string) string {
	return fmt.Sprintf("DON_%s%s", campaignPrefix(slug), strings.ToUpper(NextID().Base36()))
}

// GenerateOrderID returns the order id sent to the payment gateway. It doubles
// as the transaction primary key.
func GenerateOrderID() string {
	return "TRX" + strings.ToUpper(NextID().Base36())
}

func campaignPrefix(slug string) string {
	var b strings.Builder
	for _, r := range slug {
		if b.Len() == 3 {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	if b.Len() == 0 {
		return "GEN"
	}
	return b.String()
}
