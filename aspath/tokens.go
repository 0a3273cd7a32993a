package aspath

// Literal builds a TokAs32 token matching exactly asn.
func Literal(asn uint32) Token { return Token{Kind: TokAs32, Asn: asn} }

// Not builds a TokNegAs32 token matching any ASN other than asn.
func Not(asn uint32) Token { return Token{Kind: TokNegAs32, Asn: asn} }

// Any is the "." wildcard token: matches exactly one ASN, any value.
func Any() Token { return Token{Kind: TokAny} }

// Start is the "^" anchor token.
func Start() Token { return Token{Kind: TokStart} }

// End is the "$" anchor token.
func End() Token { return Token{Kind: TokEnd} }

// Star, Quest, Plus are the postfix repetition operators.
func Star() Token  { return Token{Kind: TokStar} }
func Quest() Token { return Token{Kind: TokQuest} }
func Plus() Token  { return Token{Kind: TokPlus} }

// Alt is the "|" infix alternation operator.
func Alt() Token { return Token{Kind: TokAlt} }

// LParen, RParen group a subexpression for repetition/alternation and
// open a capturing group.
func LParen() Token { return Token{Kind: TokLPar} }
func RParen() Token { return Token{Kind: TokRPar} }
