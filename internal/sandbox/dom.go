package sandbox

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// domProxy exposes a Document to sandboxed JavaScript. Proxies are cached
// per node so identity comparisons hold. It is only used from the loop
// goroutine; the document lock covers reads from other goroutines.
type domProxy struct {
	vm      *goja.Runtime
	doc     *Document
	proxies map[*html.Node]*goja.Object
	nodes   map[*goja.Object]*html.Node
}

func newDOMProxy(vm *goja.Runtime, doc *Document) *domProxy {
	return &domProxy{
		vm:      vm,
		doc:     doc,
		proxies: make(map[*html.Node]*goja.Object),
		nodes:   make(map[*goja.Object]*html.Node),
	}
}

// install defines the document global
func (p *domProxy) install() error {
	document := p.vm.NewObject()
	root := p.doc.doc.Selection

	document.Set("getElementById", func(call goja.FunctionCall) goja.Value {
		id := call.Argument(0).String()
		unlock := p.doc.lock()
		sel := root.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			v, _ := s.Attr("id")
			return v == id
		}).First()
		unlock()
		return p.element(sel)
	})
	document.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		unlock := p.doc.lock()
		sel := root.Find(call.Argument(0).String()).First()
		unlock()
		return p.element(sel)
	})
	document.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		unlock := p.doc.lock()
		sel := root.Find(call.Argument(0).String())
		unlock()
		return p.list(sel)
	})
	document.Set("createElement", func(call goja.FunctionCall) goja.Value {
		tag := strings.ToLower(call.Argument(0).String())
		node := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
		return p.proxy(node)
	})
	document.Set("createTextNode", func(call goja.FunctionCall) goja.Value {
		node := &html.Node{Type: html.TextNode, Data: call.Argument(0).String()}
		return p.proxy(node)
	})

	for _, name := range []string{"head", "body"} {
		name := name
		p.getter(document, name, func() goja.Value {
			unlock := p.doc.lock()
			sel := root.Find(name).First()
			unlock()
			return p.element(sel)
		})
	}
	p.getter(document, "documentElement", func() goja.Value {
		unlock := p.doc.lock()
		sel := root.Find("html").First()
		unlock()
		return p.element(sel)
	})
	p.accessor(document, "title",
		func() goja.Value {
			unlock := p.doc.lock()
			defer unlock()
			return p.vm.ToValue(root.Find("title").First().Text())
		},
		func(v goja.Value) {
			unlock := p.doc.lock()
			defer unlock()
			if t := root.Find("title").First(); t.Length() > 0 {
				t.SetText(v.String())
			}
		})

	return p.vm.Set("document", document)
}

func (p *domProxy) element(sel *goquery.Selection) goja.Value {
	if sel.Length() == 0 {
		return goja.Null()
	}
	return p.proxy(sel.Get(0))
}

func (p *domProxy) list(sel *goquery.Selection) goja.Value {
	items := make([]interface{}, 0, sel.Length())
	for _, n := range sel.Nodes {
		items = append(items, p.proxy(n))
	}
	return p.vm.NewArray(items...)
}

// selection wraps a node that may be detached from the document
func selection(n *html.Node) *goquery.Selection {
	return goquery.NewDocumentFromNode(n).Selection
}

func (p *domProxy) nodeOf(v goja.Value) *html.Node {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	return p.nodes[obj]
}

// proxy builds the element object for a node
func (p *domProxy) proxy(n *html.Node) goja.Value {
	if obj, ok := p.proxies[n]; ok {
		return obj
	}

	o := p.vm.NewObject()
	p.proxies[n] = o
	p.nodes[o] = n

	if n.Type == html.TextNode {
		o.Set("nodeType", 3)
		p.accessor(o, "textContent",
			func() goja.Value { return p.vm.ToValue(n.Data) },
			func(v goja.Value) {
				unlock := p.doc.lock()
				defer unlock()
				n.Data = v.String()
			})
		return o
	}

	sel := selection(n)
	o.Set("nodeType", 1)
	o.Set("tagName", strings.ToUpper(n.Data))
	o.Set("style", p.vm.NewObject())

	p.attribute(o, sel, "id", "id")
	p.attribute(o, sel, "className", "class")
	p.attribute(o, sel, "value", "value")

	p.accessor(o, "textContent",
		func() goja.Value {
			unlock := p.doc.lock()
			defer unlock()
			return p.vm.ToValue(sel.Text())
		},
		func(v goja.Value) {
			unlock := p.doc.lock()
			defer unlock()
			p.forget(sel.Contents())
			sel.SetText(v.String())
		})
	p.accessor(o, "innerHTML",
		func() goja.Value {
			unlock := p.doc.lock()
			defer unlock()
			h, _ := sel.Html()
			return p.vm.ToValue(h)
		},
		func(v goja.Value) {
			unlock := p.doc.lock()
			defer unlock()
			p.forget(sel.Contents())
			sel.SetHtml(v.String())
		})
	p.getter(o, "parentElement", func() goja.Value {
		if n.Parent == nil || n.Parent.Type != html.ElementNode {
			return goja.Null()
		}
		return p.proxy(n.Parent)
	})
	p.getter(o, "children", func() goja.Value {
		unlock := p.doc.lock()
		kids := sel.Children()
		unlock()
		return p.list(kids)
	})

	o.Set("getAttribute", func(call goja.FunctionCall) goja.Value {
		unlock := p.doc.lock()
		defer unlock()
		if v, ok := sel.Attr(call.Argument(0).String()); ok {
			return p.vm.ToValue(v)
		}
		return goja.Null()
	})
	o.Set("setAttribute", func(call goja.FunctionCall) goja.Value {
		unlock := p.doc.lock()
		defer unlock()
		sel.SetAttr(call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})
	o.Set("removeAttribute", func(call goja.FunctionCall) goja.Value {
		unlock := p.doc.lock()
		defer unlock()
		sel.RemoveAttr(call.Argument(0).String())
		return goja.Undefined()
	})
	o.Set("hasAttribute", func(call goja.FunctionCall) goja.Value {
		unlock := p.doc.lock()
		defer unlock()
		_, ok := sel.Attr(call.Argument(0).String())
		return p.vm.ToValue(ok)
	})

	o.Set("appendChild", func(call goja.FunctionCall) goja.Value {
		child := p.nodeOf(call.Argument(0))
		if child == nil {
			panic(p.vm.NewTypeError("appendChild: argument is not a node"))
		}
		if isAncestor(child, n) {
			panic(p.vm.NewTypeError("appendChild: cannot append an ancestor"))
		}
		unlock := p.doc.lock()
		sel.AppendNodes(child)
		unlock()
		return call.Argument(0)
	})
	o.Set("append", func(call goja.FunctionCall) goja.Value {
		unlock := p.doc.lock()
		defer unlock()
		for _, arg := range call.Arguments {
			if child := p.nodeOf(arg); child != nil && !isAncestor(child, n) {
				sel.AppendNodes(child)
			} else if child == nil {
				sel.AppendNodes(&html.Node{Type: html.TextNode, Data: arg.String()})
			}
		}
		return goja.Undefined()
	})
	o.Set("remove", func(call goja.FunctionCall) goja.Value {
		unlock := p.doc.lock()
		defer unlock()
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		return goja.Undefined()
	})
	o.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		unlock := p.doc.lock()
		found := sel.Find(call.Argument(0).String()).First()
		unlock()
		return p.element(found)
	})
	o.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		unlock := p.doc.lock()
		found := sel.Find(call.Argument(0).String())
		unlock()
		return p.list(found)
	})

	classList := p.vm.NewObject()
	classList.Set("add", func(call goja.FunctionCall) goja.Value {
		unlock := p.doc.lock()
		defer unlock()
		for _, a := range call.Arguments {
			sel.AddClass(a.String())
		}
		return goja.Undefined()
	})
	classList.Set("remove", func(call goja.FunctionCall) goja.Value {
		unlock := p.doc.lock()
		defer unlock()
		for _, a := range call.Arguments {
			sel.RemoveClass(a.String())
		}
		return goja.Undefined()
	})
	classList.Set("toggle", func(call goja.FunctionCall) goja.Value {
		unlock := p.doc.lock()
		defer unlock()
		sel.ToggleClass(call.Argument(0).String())
		return p.vm.ToValue(sel.HasClass(call.Argument(0).String()))
	})
	classList.Set("contains", func(call goja.FunctionCall) goja.Value {
		unlock := p.doc.lock()
		defer unlock()
		return p.vm.ToValue(sel.HasClass(call.Argument(0).String()))
	})
	o.Set("classList", classList)

	// Events never fire inside the host; listeners are accepted and dropped.
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	o.Set("addEventListener", noop)
	o.Set("removeEventListener", noop)

	return o
}

// forget drops cached proxies for nodes about to be replaced
func (p *domProxy) forget(sel *goquery.Selection) {
	for _, n := range sel.Nodes {
		if obj, ok := p.proxies[n]; ok {
			delete(p.nodes, obj)
			delete(p.proxies, n)
		}
	}
}

func (p *domProxy) attribute(o *goja.Object, sel *goquery.Selection, prop, attr string) {
	p.accessor(o, prop,
		func() goja.Value {
			unlock := p.doc.lock()
			defer unlock()
			v, _ := sel.Attr(attr)
			return p.vm.ToValue(v)
		},
		func(v goja.Value) {
			unlock := p.doc.lock()
			defer unlock()
			sel.SetAttr(attr, v.String())
		})
}

func (p *domProxy) getter(o *goja.Object, name string, get func() goja.Value) {
	o.DefineAccessorProperty(name,
		p.vm.ToValue(func(goja.FunctionCall) goja.Value { return get() }),
		nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
}

func (p *domProxy) accessor(o *goja.Object, name string, get func() goja.Value, set func(goja.Value)) {
	o.DefineAccessorProperty(name,
		p.vm.ToValue(func(goja.FunctionCall) goja.Value { return get() }),
		p.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			set(call.Argument(0))
			return goja.Undefined()
		}),
		goja.FLAG_FALSE, goja.FLAG_TRUE)
}

func isAncestor(candidate, n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == candidate {
			return true
		}
	}
	return false
}
