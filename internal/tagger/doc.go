// Package tagger resolves probe tags and pattern fields from ultrasound
// frames.
//
// A Resolver walks an imaging.Ladder, asking an ocr.Engine to read each
// candidate and turning every observation into a verdict:
//
//   - vocabulary mode: the first highest-confidence token is normalized
//     (upper-cased, non-alphanumerics removed) and accepted only if it is in
//     the vocabulary;
//   - pattern mode: the first token whose upper-cased text matches the
//     pattern at its start is accepted with its own confidence.
//
// Failed candidates yield vocab.Undecided, or vocab.NoTag when the top token
// is blank. The first accepted candidate ends the search. When all candidates
// fail the exhaustion Policy picks the result: LastWins (default) returns the
// final candidate's verdict, BestOfAll the highest-confidence one.
//
// OCR errors and timeouts never escape: the candidate counts as having no
// tokens and the ladder continues. The only error returned is a frame that is
// not two-dimensional.
//
// Service wraps a Resolver with the per-model box table, the field table and
// the vocabulary, and decides vocab.Unknown for frames that cannot carry a
// tag.
package tagger
