package main

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/congo-pay/bankd/internal/verbs"
)

// verbDef describes one verb command: the request fields it takes and which
// of them are required.
type verbDef struct {
	verb     string
	usage    string
	fields   []string
	required []string
}

var verbDefs = []verbDef{
	{verb: "issuerootkey", usage: "issue the bank's root key, once"},
	{verb: "xfer", usage: "move funds between two accounts", fields: []string{"src", "dst", "amount"}, required: []string{"src", "dst", "amount"}},
	{verb: "mint", usage: "create funds in an account", fields: []string{"dst", "amount"}, required: []string{"dst", "amount"}},
	{verb: "unmint", usage: "destroy funds in an account", fields: []string{"src", "amount"}, required: []string{"src", "amount"}},
	{verb: "encumber", usage: "reserve funds in an account", fields: []string{"src", "amount", "expires"}, required: []string{"src", "amount", "expires"}},
	{verb: "releaseenc", usage: "release an encumbrance back to its account", fields: []string{"enc"}, required: []string{"enc"}},
	{verb: "xferenc", usage: "transfer all funds held by an encumbrance", fields: []string{"enc", "dst"}, required: []string{"enc", "dst"}},
	{verb: "unmintenc", usage: "destroy all funds held by an encumbrance", fields: []string{"enc"}, required: []string{"enc"}},
	{verb: "queryenc", usage: "describe an encumbrance", fields: []string{"enc"}, required: []string{"enc"}},
	{verb: "makeaccounts", usage: "open one account per listed currency", fields: []string{"currs", "owner"}, required: []string{"currs"}},
	{verb: "deleteaccount", usage: "delete an empty account", fields: []string{"account"}, required: []string{"account"}},
	{verb: "queryaccounts", usage: "describe accounts", fields: []string{"accounts", "encs"}, required: []string{"accounts"}},
	{verb: "freezeaccount", usage: "freeze an account", fields: []string{"account"}, required: []string{"account"}},
	{verb: "unfreezeaccount", usage: "unfreeze an account", fields: []string{"account"}, required: []string{"account"}},
	{verb: "makecurrency", usage: "define a currency", fields: []string{"curr"}, required: []string{"curr"}},
	{verb: "querycurrencies", usage: "list currencies"},
	{verb: "makekey", usage: "mint a child capability key", fields: []string{"auth", "currs", "expires"}, required: []string{"auth", "currs"}},
	{verb: "cancelkey", usage: "cancel a key and its descendants", fields: []string{"cancel"}, required: []string{"cancel"}},
	{verb: "dupkey", usage: "duplicate the authorizing key", fields: []string{"expires"}},
}

var fieldFlags = map[string]cli.Flag{
	"src":      cli.StringFlag{Name: "src", Usage: "source account `REF`"},
	"dst":      cli.StringFlag{Name: "dst", Usage: "destination account `REF`"},
	"amount":   cli.Int64Flag{Name: "amount, a", Usage: "`AMOUNT` in whole units"},
	"expires":  cli.StringFlag{Name: "expires, x", Usage: "expiry, `+MILLIS`, never, or a date"},
	"enc":      cli.StringFlag{Name: "enc", Usage: "encumbrance `REF`"},
	"account":  cli.StringFlag{Name: "account", Usage: "account `REF`"},
	"accounts": cli.StringSliceFlag{Name: "accounts", Usage: "account `REF`, repeatable"},
	"encs":     cli.BoolFlag{Name: "encs", Usage: "include encumbrances"},
	"currs":    cli.StringSliceFlag{Name: "currs", Usage: "currency `NAME`, repeatable"},
	"curr":     cli.StringFlag{Name: "curr", Usage: "currency `NAME`"},
	"owner":    cli.StringFlag{Name: "owner", Usage: "account owner `NAME`"},
	"auth":     cli.StringFlag{Name: "auth", Usage: "key authority `AUTH` [curr|acct|mint|xfer]"},
	"cancel":   cli.StringFlag{Name: "cancel", Usage: "key `REF` to cancel"},
}

var commonFlags = []cli.Flag{
	cli.StringFlag{Name: "memo, m", Usage: "request `MEMO`"},
	cli.StringFlag{Name: "xid", Usage: "caller transaction `ID` echoed in the reply"},
	cli.StringFlag{Name: "idempotency-key, i", Usage: "`KEY` making a retried request safe"},
}

func verbCommands() []cli.Command {
	commands := make([]cli.Command, 0, len(verbDefs))
	for _, def := range verbDefs {
		def := def
		flags := append([]cli.Flag{}, commonFlags...)
		for _, f := range def.fields {
			flags = append(flags, fieldFlags[f])
		}
		commands = append(commands, cli.Command{
			Name:  def.verb,
			Usage: def.usage,
			Flags: flags,
			Action: func(c *cli.Context) error {
				return runVerb(c, def)
			},
		})
	}
	return commands
}

// buildRequest maps command flags onto a verb request.
func buildRequest(c *cli.Context, def verbDef, m *metadata) (verbs.Request, error) {
	for _, f := range def.required {
		if !c.IsSet(f) {
			return verbs.Request{}, fmt.Errorf("%s: --%s is required", def.verb, f)
		}
	}
	return verbs.Request{
		Verb:     def.verb,
		Key:      m.key,
		Rep:      m.rep,
		Xid:      c.String("xid"),
		Memo:     c.String("memo"),
		Src:      c.String("src"),
		Dst:      c.String("dst"),
		Amount:   c.Int64("amount"),
		Expires:  c.String("expires"),
		Enc:      c.String("enc"),
		Account:  c.String("account"),
		Accounts: c.StringSlice("accounts"),
		Encs:     c.Bool("encs"),
		Currs:    c.StringSlice("currs"),
		Curr:     c.String("curr"),
		Owner:    c.String("owner"),
		Auth:     c.String("auth"),
		Cancel:   c.String("cancel"),
	}, nil
}

func runVerb(c *cli.Context, def verbDef) error {
	m := c.App.Metadata["config"].(*metadata)

	req, err := buildRequest(c, def, m)
	if err != nil {
		return err
	}
	if m.verbose {
		fmt.Fprintf(m.e, "server: %s\n", m.server)
		printJson(m.e, req)
	}

	status, reply, err := postVerb(m, req, c.String("idempotency-key"))
	if err != nil {
		return err
	}
	printJson(m.w, reply)
	if status >= 400 {
		if fail, ok := reply["fail"].(string); ok {
			return fmt.Errorf("%s: %v", fail, reply["desc"])
		}
		return fmt.Errorf("server answered %d: %v", status, reply["error"])
	}
	return nil
}

func runVerbs(c *cli.Context) error {
	m := c.App.Metadata["config"].(*metadata)
	info, err := describeBank(m)
	if err != nil {
		return err
	}
	return printJson(m.w, info)
}
