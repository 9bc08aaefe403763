package chunk

import (
	"context"
	"strings"
	"time"
)

// CodeChunkerOptions configures the code chunker behavior
type CodeChunkerOptions struct {
	MaxChunkTokens int // Maximum tokens per chunk (default: DefaultMaxChunkTokens)
	OverlapTokens  int // Overlap between chunks when splitting (default: DefaultOverlapTokens)
}

// CodeChunker implements AST-aware code chunking using tree-sitter, with a
// character-based fallback for unsupported or unparseable files.
type CodeChunker struct {
	parser    *Parser
	extractor *SymbolExtractor
	registry  *LanguageRegistry
	options   CodeChunkerOptions
}

// NewCodeChunker creates a new code chunker with default options
func NewCodeChunker() *CodeChunker {
	return NewCodeChunkerWithOptions(CodeChunkerOptions{})
}

// NewCodeChunkerWithOptions creates a new code chunker with custom options
func NewCodeChunkerWithOptions(opts CodeChunkerOptions) *CodeChunker {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}

	registry := DefaultRegistry()
	return &CodeChunker{
		parser:    NewParserWithRegistry(registry),
		extractor: NewSymbolExtractorWithRegistry(registry),
		registry:  registry,
		options:   opts,
	}
}

// Close releases chunker resources
func (c *CodeChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// SupportedExtensions returns file extensions this chunker handles
func (c *CodeChunker) SupportedExtensions() []string {
	return c.registry.SupportedExtensions()
}

// maxChunkBytes is the byte-length budget backing the ">2x" re-chunk
// threshold and the fallback strategy's chunkSize/overlap parameters.
// Derived from the token budget via TokensPerChar, matching the
// fallback chunker's own token-to-byte approximation.
func (c *CodeChunker) maxChunkBytes() int {
	return c.options.MaxChunkTokens * TokensPerChar
}

func (c *CodeChunker) overlapBytes() int {
	return c.options.OverlapTokens * TokensPerChar
}

// Chunk splits a file into semantic chunks. The syntax strategy is
// tried first for supported languages; it falls back to the character
// strategy on an unsupported language, a parse failure, or a parse
// that yields zero chunks for a file larger than 100 bytes.
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if len(file.Content) == 0 {
		return nil, nil
	}

	_, supported := c.registry.GetByName(file.Language)
	if !supported {
		return c.chunkByLines(file), nil
	}

	tree, err := c.parser.Parse(ctx, file.Content, file.Language)
	if err != nil {
		return c.chunkByLines(file), nil
	}

	fileContext := c.extractFileContext(tree, file.Content, file.Language)
	fileContext = c.enrichContextWithFilePath(file.Path, file.Language, fileContext)

	symbolNodes := c.findSymbolNodes(tree, file.Language)
	if len(symbolNodes) == 0 {
		if len(file.Content) > 100 {
			return c.chunkByLines(file), nil
		}
		return nil, nil
	}

	chunks := make([]*Chunk, 0, len(symbolNodes))
	now := time.Now()
	index := 0

	for _, node := range symbolNodes {
		nodeChunks := c.createChunksFromNode(node, tree, file, fileContext, now, &index)
		chunks = append(chunks, nodeChunks...)
	}

	return chunks, nil
}

// symbolNodeInfo holds a symbol node with its extracted symbol info
type symbolNodeInfo struct {
	node   *Node
	symbol *Symbol
}

// findSymbolNodes finds the top-most symbol-defining nodes. Children of
// a chunkable node are never descended into, so a method nested inside
// a class yields one chunk for the class, not one per method.
func (c *CodeChunker) findSymbolNodes(tree *Tree, language string) []*symbolNodeInfo {
	config, ok := c.registry.GetByName(language)
	if !ok {
		return []*symbolNodeInfo{}
	}

	var symbolNodes []*symbolNodeInfo

	symbolTypes := make(map[string]SymbolType)
	for _, t := range config.FunctionTypes {
		symbolTypes[t] = SymbolTypeFunction
	}
	for _, t := range config.MethodTypes {
		symbolTypes[t] = SymbolTypeMethod
	}
	for _, t := range config.ClassTypes {
		symbolTypes[t] = SymbolTypeClass
	}
	for _, t := range config.InterfaceTypes {
		symbolTypes[t] = SymbolTypeInterface
	}
	for _, t := range config.TypeDefTypes {
		symbolTypes[t] = SymbolTypeType
	}
	for _, t := range config.ConstantTypes {
		symbolTypes[t] = SymbolTypeConstant
	}
	for _, t := range config.VariableTypes {
		symbolTypes[t] = SymbolTypeVariable
	}

	tree.Root.Walk(func(n *Node) bool {
		if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
			sym := c.extractor.extractSpecialSymbol(n, tree.Source, language)
			if sym != nil {
				symbolNodes = append(symbolNodes, &symbolNodeInfo{node: n, symbol: sym})
				return false // top-most match; do not descend
			}
		}

		if symType, isSymbol := symbolTypes[n.Type]; isSymbol {
			sym := c.extractSymbol(n, tree, symType, language)
			if sym != nil {
				symbolNodes = append(symbolNodes, &symbolNodeInfo{node: n, symbol: sym})
				return false // do not recurse into a chunkable node's children
			}
		}
		return true
	})

	return symbolNodes
}

// extractSymbol extracts symbol info from a node
func (c *CodeChunker) extractSymbol(n *Node, tree *Tree, symType SymbolType, language string) *Symbol {
	config, _ := c.registry.GetByName(language)
	name := c.extractor.extractName(n, tree.Source, config, language)
	if name == "" {
		return nil
	}

	docComment := c.extractDocComment(n, tree.Source, language)

	return &Symbol{
		Name:       name,
		Type:       symType,
		StartLine:  int(n.StartPoint.Row) + 1,
		EndLine:    int(n.EndPoint.Row) + 1,
		DocComment: docComment,
	}
}

// extractDocComment extracts doc comment for a node, looking for multi-line comments
func (c *CodeChunker) extractDocComment(n *Node, source []byte, language string) string {
	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}

	if lineStart <= 1 {
		return ""
	}

	var commentLines []string
	pos := lineStart - 1

	for pos > 0 {
		prevLineEnd := pos
		pos--
		for pos > 0 && source[pos] != '\n' {
			pos--
		}
		prevLineStart := pos
		if pos > 0 {
			prevLineStart++
		}

		prevLine := strings.TrimSpace(string(source[prevLineStart:prevLineEnd]))

		switch language {
		case "go", "typescript", "tsx", "javascript", "jsx", "rust", "java", "php", "c":
			if strings.HasPrefix(prevLine, "//") {
				commentLines = append([]string{strings.TrimPrefix(prevLine, "//")}, commentLines...)
				continue
			}
		case "python", "ruby":
			if strings.HasPrefix(prevLine, "#") {
				commentLines = append([]string{strings.TrimPrefix(prevLine, "#")}, commentLines...)
				continue
			}
		}

		if prevLine != "" {
			break
		}
	}

	if len(commentLines) == 0 {
		return ""
	}

	return strings.TrimSpace(strings.Join(commentLines, "\n"))
}

// chunkKindFor maps a symbol type to the spec's {function, class,
// interface, block} chunk-kind vocabulary.
func chunkKindFor(t SymbolType) ChunkKind {
	switch t {
	case SymbolTypeClass:
		return ChunkKindClass
	case SymbolTypeInterface:
		return ChunkKindInterface
	case SymbolTypeFunction, SymbolTypeMethod:
		return ChunkKindFunction
	default:
		return ChunkKindBlock
	}
}

// createChunksFromNode creates one or more chunks from a symbol node.
// A node under 50 bytes is dropped as too trivial. A node over 2x the
// chunk-size budget is re-chunked by the fallback strategy with line
// numbers offset to the enclosing node, per the syntax-strategy
// contract.
func (c *CodeChunker) createChunksFromNode(info *symbolNodeInfo, tree *Tree, file *FileInput, fileContext string, now time.Time, index *int) []*Chunk {
	node := info.node
	rawContent := string(tree.Source[node.StartByte:node.EndByte])

	rawContentWithDoc := rawContent
	if info.symbol.DocComment != "" {
		rawContentWithDoc = c.getRawContentWithDocComment(node, tree.Source, info.symbol.DocComment)
	}

	if len(rawContentWithDoc) < 50 {
		return nil
	}

	maxBytes := c.maxChunkBytes()
	if len(rawContentWithDoc) > 2*maxBytes {
		return c.fallbackChunk(rawContentWithDoc, file, fileContext, int(node.StartPoint.Row)+1, index, chunkKindFor(info.symbol.Type), info.symbol.Name)
	}

	chunk := c.createChunk(file, rawContentWithDoc, fileContext, info.symbol, now, *index)
	*index++
	return []*Chunk{chunk}
}

// getRawContentWithDocComment gets raw content including doc comment
func (c *CodeChunker) getRawContentWithDocComment(n *Node, source []byte, docComment string) string {
	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}

	docLines := strings.Count(docComment, "\n") + 1
	for i := 0; i < docLines && lineStart > 0; i++ {
		lineStart--
		for lineStart > 0 && source[lineStart-1] != '\n' {
			lineStart--
		}
	}

	return string(source[lineStart:n.EndByte])
}

// createChunk creates a single chunk from content
func (c *CodeChunker) createChunk(file *FileInput, rawContent, fileContext string, symbol *Symbol, now time.Time, index int) *Chunk {
	return &Chunk{
		ChunkIndex:  index,
		FilePath:    file.Path,
		Content:     combineContextAndContent(fileContext, rawContent),
		RawContent:  rawContent,
		Context:     fileContext,
		ContentType: ContentTypeCode,
		Kind:        chunkKindFor(symbol.Type),
		Language:    file.Language,
		StartLine:   symbol.StartLine,
		EndLine:     symbol.EndLine,
		Symbols:     []*Symbol{symbol},
		Metadata:    make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// extractFileContext extracts package declaration and imports from a file
func (c *CodeChunker) extractFileContext(tree *Tree, source []byte, language string) string {
	var parts []string

	switch language {
	case "go":
		parts = c.extractGoContext(tree, source)
	case "typescript", "tsx":
		parts = c.extractTSContext(tree, source)
	case "javascript", "jsx":
		parts = c.extractJSContext(tree, source)
	case "python":
		parts = c.extractPythonContext(tree, source)
	}

	return strings.Join(parts, "\n\n")
}

func (c *CodeChunker) extractGoContext(tree *Tree, source []byte) []string {
	var parts []string

	for _, node := range tree.Root.Children {
		if node.Type == "package_clause" {
			parts = append(parts, node.GetContent(source))
			break
		}
	}

	for _, node := range tree.Root.Children {
		if node.Type == "import_declaration" {
			parts = append(parts, node.GetContent(source))
		}
	}

	return parts
}

func (c *CodeChunker) extractTSContext(tree *Tree, source []byte) []string {
	return c.extractJSContext(tree, source)
}

func (c *CodeChunker) extractJSContext(tree *Tree, source []byte) []string {
	var parts []string

	for _, node := range tree.Root.Children {
		if node.Type == "import_statement" {
			parts = append(parts, node.GetContent(source))
		}
	}

	return parts
}

func (c *CodeChunker) extractPythonContext(tree *Tree, source []byte) []string {
	var parts []string

	for _, node := range tree.Root.Children {
		if node.Type == "import_statement" || node.Type == "import_from_statement" {
			parts = append(parts, node.GetContent(source))
		}
	}

	return parts
}

// breakPoint reports whether the given (trimmed) line is an acceptable
// place to end a fallback chunk window.
func isBreakPointLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true
	}
	switch trimmed {
	case "}", "};", "]);":
		return true
	}
	return strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#")
}

// fallbackChunk implements the character-based fallback strategy
// (spec §4.B.B2): accumulate lines until the window reaches chunkSize,
// extend up to 20 lines looking for a break point without exceeding
// maxChunkSize, emit a chunk, then start the next window at
// (chunkSize - overlapLines) lines back. startLineOffset lets this be
// used both for whole-file fallback (offset 1) and for re-chunking an
// oversized syntax-strategy node (offset = enclosing node's start line).
func (c *CodeChunker) fallbackChunk(content string, file *FileInput, fileContext string, startLineOffset int, index *int, kind ChunkKind, symbolName string) []*Chunk {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 {
		return nil
	}

	chunkSize := c.maxChunkBytes()
	overlap := c.overlapBytes()
	maxSize := 2 * chunkSize

	totalLines := len(lines)
	avgLineLen := chunkSize / totalLines
	if avgLineLen < 1 {
		avgLineLen = 1
	}
	linesPerChunk := chunkSize / avgLineLen
	if linesPerChunk < 1 {
		linesPerChunk = 1
	}
	overlapLines := int(float64(overlap) / maxFloat(float64(chunkSize)/float64(totalLines), 1))
	if overlapLines < 0 {
		overlapLines = 0
	}

	var chunks []*Chunk
	now := time.Now()

	for i := 0; i < totalLines; {
		windowLen := 0
		end := i
		for end < totalLines {
			lineLen := len(lines[end]) + 1
			if windowLen+lineLen > maxSize && windowLen > 0 {
				break
			}
			windowLen += lineLen
			end++
			if windowLen >= chunkSize {
				extended := false
				for look := 0; look < 20 && end < totalLines; look++ {
					nextLen := len(lines[end]) + 1
					if windowLen+nextLen > maxSize {
						break
					}
					if isBreakPointLine(lines[end]) {
						windowLen += nextLen
						end++
						extended = true
						break
					}
					windowLen += nextLen
					end++
				}
				_ = extended
				break
			}
		}
		if end <= i {
			end = i + 1
		}

		chunkContent := strings.Join(lines[i:end], "\n")
		if strings.TrimSpace(chunkContent) != "" && len(strings.TrimSpace(chunkContent)) > 50 {
			startLine := startLineOffset + i
			endLine := startLineOffset + end - 1

			var symbols []*Symbol
			if symbolName != "" {
				symbols = []*Symbol{{
					Name:      symbolName,
					StartLine: startLine,
					EndLine:   endLine,
				}}
			}

			chunks = append(chunks, &Chunk{
				ChunkIndex:  *index,
				FilePath:    file.Path,
				Content:     combineContextAndContent(fileContext, chunkContent),
				RawContent:  chunkContent,
				Context:     fileContext,
				ContentType: ContentTypeCode,
				Kind:        kind,
				Language:    file.Language,
				StartLine:   startLine,
				EndLine:     endLine,
				Symbols:     symbols,
				Metadata:    make(map[string]string),
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			*index++
		}

		if end >= totalLines {
			break
		}
		next := end - overlapLines
		if next <= i {
			next = i + 1
		}
		i = next
	}

	return chunks
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// chunkByLines is the fallback for unsupported languages or files the
// syntax strategy could not usefully parse.
func (c *CodeChunker) chunkByLines(file *FileInput) []*Chunk {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil
	}
	index := 0
	return c.fallbackChunk(content, file, "", 1, &index, ChunkKindBlock, "")
}

// estimateTokens estimates the number of tokens in content
func estimateTokens(content string) int {
	return len(content) / TokensPerChar
}

// combineContextAndContent combines context and raw content into full content
func combineContextAndContent(context, rawContent string) string {
	if context == "" {
		return rawContent
	}
	return context + "\n\n" + rawContent
}

// enrichContextWithFilePath prepends a file path marker to the context.
func (c *CodeChunker) enrichContextWithFilePath(filePath, language, existingContext string) string {
	if filePath == "" {
		return existingContext
	}

	var marker string
	switch language {
	case "python", "ruby":
		marker = "# File: " + filePath
	default:
		marker = "// File: " + filePath
	}

	if existingContext == "" {
		return marker
	}
	return marker + "\n" + existingContext
}
