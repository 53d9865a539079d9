package mailpart

// Result is the outcome of flattening a part list.
type Result struct {
	// Assets holds every part that is not part of the body pair, in the
	// order it was visited.
	Assets []Part

	HTML string
	Text string
}

// Flatten walks parts and separates the body pair from the assets.
//
// A list whose first two entries are a text/plain leaf followed by a
// text/html leaf is the body pair; anything after them is an asset.
// multipart/related and multipart/alternative containers are walked with
// the same rule, and every other part is an asset.
//
// When no body was found, the last asset is taken as both the HTML and the
// text body and removed from Assets. Single-part messages rely on this.
func Flatten(parts []Part) Result {
	var res Result
	flatten(&res, parts)

	if res.HTML == "" && res.Text == "" && len(res.Assets) > 0 {
		last := res.Assets[len(res.Assets)-1]
		res.Assets = res.Assets[:len(res.Assets)-1]
		res.HTML = Content(last)
		res.Text = res.HTML
	}

	return res
}

func flatten(dst *Result, parts []Part) {
	if isBodyPair(parts) {
		dst.Text = Content(parts[0])
		dst.HTML = Content(parts[1])
		dst.Assets = append(dst.Assets, parts[2:]...)
		return
	}

	for _, p := range parts {
		if c, ok := p.(*Container); ok && isWalkable(c) {
			flatten(dst, c.Children)
			continue
		}
		dst.Assets = append(dst.Assets, p)
	}
}

func isBodyPair(parts []Part) bool {
	if len(parts) < 2 {
		return false
	}
	text, ok := parts[0].(*Leaf)
	if !ok || text.Type() != TypeTextPlain {
		return false
	}
	html, ok := parts[1].(*Leaf)
	return ok && html.Type() == TypeTextHTML
}

func isWalkable(c *Container) bool {
	switch c.Type() {
	case TypeMultipartRelated, TypeMultipartAlternative:
		return true
	default:
		return false
	}
}
