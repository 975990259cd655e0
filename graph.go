package deepgp

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/awalterschulze/gographviz"
)

// ToDot renders the layer stack as a Graphviz digraph, one node per
// layer plus the input and the observation model.
func (d *DeepGP) ToDot() string {
	g := gographviz.NewGraph()
	if err := g.SetName("G"); err != nil {
		panic(err)
	}
	g.SetDir(true)

	layers := d.Layers()
	var buf bytes.Buffer

	g.AddNode("G", "inputs", map[string]string{
		"shape": "box",
		"label": fmt.Sprintf("\"inputs (dim %d)\"", layers[0].InputDims()),
	})
	prev := "inputs"
	for i, l := range layers {
		id := fmt.Sprintf("layer%d", i)
		tmpl.Execute(&buf, layerLabel{
			Name:        l.Name(),
			InputDims:   l.InputDims(),
			OutputDims:  l.OutputDims(),
			NumInducing: l.Strategy().NumInducing(),
		})
		g.AddNode("G", id, map[string]string{
			"fontname": "Monaco",
			"shape":    "none",
			"label":    buf.String(),
		})
		buf.Reset()
		g.AddEdge(prev, id, true, nil)
		prev = id
	}
	g.AddNode("G", "likelihood", map[string]string{
		"shape": "box",
		"label": fmt.Sprintf("\"%T\"", d.lik),
	})
	g.AddEdge(prev, "likelihood", true, nil)

	return g.String()
}

type layerLabel struct {
	Name        string
	InputDims   int
	OutputDims  int
	NumInducing int
}

const tmplRaw = `<
<TABLE BORDER="0" CELLBORDER="1" CELLSPACING="0">
<TR><TD>Layer</TD><TD>{{.Name}}</TD></TR>
<TR><TD>In</TD><TD>{{.InputDims}}</TD></TR>
<TR><TD>Out</TD><TD>{{.OutputDims}}</TD></TR>
<TR><TD>Inducing</TD><TD>{{.NumInducing}}</TD></TR>
</TABLE>
>
`

var tmpl *template.Template

func init() {
	tmpl = template.Must(template.New("layer").Parse(tmplRaw))
}
