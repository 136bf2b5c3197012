package split

import "strings"

/*
SkeletonScaffold is the built-in scaffold key: a cheap normalization of the
raw SMILES that strips stereochemistry, charges, isotopes, and explicit
hydrogen counts, so salts and stereoisomers of the same skeleton land in
one bucket. A chemistry-aware Bemis-Murcko implementation from the
featurization library can be plugged in through Options.ScaffoldKey; the
splitter only requires that equal keys mean "same scaffold".
*/
func SkeletonScaffold(smiles string) string {
	var b strings.Builder
	b.Grow(len(smiles))
	inBracket := false
	for i := 0; i < len(smiles); i++ {
		c := smiles[i]
		switch c {
		case '[':
			inBracket = true
			b.WriteByte(c)
			continue
		case ']':
			inBracket = false
			b.WriteByte(c)
			continue
		case '/', '\\', '@':
			continue // stereo markers
		case '+', '-':
			if inBracket {
				continue // charges
			}
		case 'H':
			if inBracket {
				continue // explicit hydrogens
			}
		}
		if inBracket && c >= '0' && c <= '9' {
			// isotope or H-count digits; ring-closure digits live outside
			// brackets and are kept
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
