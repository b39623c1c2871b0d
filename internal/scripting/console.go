package scripting

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/tradewind/server/internal/component"
	"github.com/tradewind/server/internal/core/ecs"
	"github.com/tradewind/server/internal/geom"
	"github.com/tradewind/server/internal/world"
)

// Console wraps a single gopher-lua VM exposing read-only world queries and
// the build command. Single-goroutine access only (game loop).
type Console struct {
	vm  *lua.LState
	ws  *world.State
	out io.Writer
	log *zap.Logger
}

// NewConsole creates the VM and installs the world API. Output from print
// goes to out.
func NewConsole(ws *world.State, out io.Writer, log *zap.Logger) *Console {
	vm := lua.NewState()
	c := &Console{vm: vm, ws: ws, out: out, log: log}

	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	for name, fn := range map[string]lua.LGFunction{
		"print":      c.luaPrint,
		"build":      c.luaBuild,
		"prices":     c.luaPrices,
		"families":   c.luaFamilies,
		"entities":   c.luaEntities,
		"markets":    c.luaMarkets,
		"blueprints": c.luaBlueprints,
		"inspect":    c.luaInspect,
	} {
		vm.SetGlobal(name, vm.NewFunction(fn))
	}
	return c
}

func (c *Console) Close() { c.vm.Close() }

// LoadDir runs every .lua file in dir in name order. A missing directory is
// not an error.
func (c *Console) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := c.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		c.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// Exec runs one console line. A bare expression is printed, so typing
// `prices(3)` shows the table without wrapping it in print.
func (c *Console) Exec(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if fn, err := c.vm.LoadString("return " + line); err == nil {
		top := c.vm.GetTop()
		c.vm.Push(fn)
		if err := c.vm.PCall(0, lua.MultRet, nil); err != nil {
			return err
		}
		n := c.vm.GetTop() - top
		vals := make([]lua.LValue, 0, n)
		for i := 1; i <= n; i++ {
			vals = append(vals, c.vm.Get(top+i))
		}
		c.vm.Pop(n)
		if n > 0 {
			c.write(vals)
		}
		return nil
	}
	return c.vm.DoString(line)
}

func (c *Console) write(vals []lua.LValue) {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = format(v)
	}
	fmt.Fprintln(c.out, strings.Join(parts, "\t"))
}

// format renders tables with sorted keys so output is stable.
func format(v lua.LValue) string {
	t, ok := v.(*lua.LTable)
	if !ok {
		return v.String()
	}
	var keys []string
	vals := map[string]string{}
	t.ForEach(func(k, v lua.LValue) {
		ks := k.String()
		keys = append(keys, ks)
		vals[ks] = format(v)
	})
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(vals[k])
	}
	b.WriteByte('}')
	return b.String()
}

func (c *Console) luaPrint(L *lua.LState) int {
	n := L.GetTop()
	vals := make([]lua.LValue, 0, n)
	for i := 1; i <= n; i++ {
		vals = append(vals, L.Get(i))
	}
	c.write(vals)
	return 0
}

// build(family, blueprint, x, y) returns the new entity id, or nil and a
// reason.
func (c *Console) luaBuild(L *lua.LState) int {
	family := L.CheckInt(1)
	name := L.CheckString(2)
	pos := geom.V(float64(L.CheckNumber(3)), float64(L.CheckNumber(4)))

	proto, ok := c.ws.BlueprintByName(name)
	if !ok {
		L.Push(lua.LNil)
		L.Push(lua.LString("unknown blueprint " + name))
		return 2
	}
	if c.ws.Family(family) == nil {
		family = component.NoFamily
	}
	id, ok := c.ws.Build(world.BuildCommand{Family: family, Blueprint: proto, Position: pos})
	if !ok {
		L.Push(lua.LNil)
		L.Push(lua.LString("cannot place " + name + " there"))
		return 2
	}
	c.log.Info("console build", zap.String("blueprint", name), zap.Stringer("entity", id), zap.Int("family", family))
	L.Push(entityValue(id))
	return 1
}

// prices(market) returns commodity name to current price.
func (c *Console) luaPrices(L *lua.LState) int {
	id := ecs.EntityID(L.CheckNumber(1))
	m, ok := c.ws.Market.Get(id)
	if !ok {
		L.Push(lua.LNil)
		L.Push(lua.LString("not a market"))
		return 2
	}
	t := L.NewTable()
	for _, com := range c.ws.Commodities() {
		t.RawSetString(c.ws.NameOf(com), lua.LNumber(m.Prices[com]))
	}
	L.Push(t)
	return 1
}

func (c *Console) luaFamilies(L *lua.LState) int {
	t := L.NewTable()
	for i, f := range c.ws.Families {
		row := L.NewTable()
		row.RawSetString("id", lua.LNumber(i))
		row.RawSetString("name", lua.LString(f.Name))
		row.RawSetString("balance", lua.LNumber(f.Balance))
		t.Append(row)
	}
	L.Push(t)
	return 1
}

// entities() lists every placed entity with its name and position.
func (c *Console) luaEntities(L *lua.LState) int {
	t := L.NewTable()
	for _, id := range c.ws.Site.IDs() {
		site := c.ws.Site.MustGet(id)
		row := L.NewTable()
		row.RawSetString("id", entityValue(id))
		row.RawSetString("name", lua.LString(c.ws.NameOf(id)))
		row.RawSetString("x", lua.LNumber(site.Position.X))
		row.RawSetString("y", lua.LNumber(site.Position.Y))
		t.Append(row)
	}
	L.Push(t)
	return 1
}

func (c *Console) luaMarkets(L *lua.LState) int {
	t := L.NewTable()
	for _, id := range c.ws.Market.IDs() {
		t.Append(entityValue(id))
	}
	L.Push(t)
	return 1
}

func (c *Console) luaBlueprints(L *lua.LState) int {
	t := L.NewTable()
	for _, id := range c.ws.Blueprints() {
		t.Append(lua.LString(c.ws.NameOf(id)))
	}
	L.Push(t)
	return 1
}

// inspect(id) lists the components an entity carries.
func (c *Console) luaInspect(L *lua.LState) int {
	id := ecs.EntityID(L.CheckNumber(1))
	if !c.ws.ECS.Alive(id) {
		L.Push(lua.LNil)
		L.Push(lua.LString("no such entity"))
		return 2
	}
	t := L.NewTable()
	for _, name := range c.ws.ECS.Registry().Describe(id) {
		t.Append(lua.LString(name))
	}
	L.Push(t)
	return 1
}

func entityValue(id ecs.EntityID) lua.LValue { return lua.LNumber(float64(id)) }
