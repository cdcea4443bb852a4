package versionit

// Preset templates covering common versioning layouts. Each preset renders the
// context's current version through an unconstrained semantic block.

func SemanticTemplate() Template {
	return NewTemplate("semantic").
		AddBlock(NewBlock("version", SemanticBlock{}))
}

func CalverShortTemplate() Template {
	return NewTemplate("calver-short").
		AddBlock(NewBlock("date", CalverBlock{}).WithFormat("YY.MM.DD"))
}

func CalverLongTemplate() Template {
	return NewTemplate("calver-long").
		AddBlock(NewBlock("date", CalverBlock{}).WithFormat("YYYY.MM.DD"))
}

func TimestampedTemplate() Template {
	return NewTemplate("timestamped").
		WithSeparator("-").
		AddBlock(NewBlock("version", SemanticBlock{})).
		AddBlock(NewBlock("timestamp", TimestampBlock{}))
}

func CommitBasedTemplate() Template {
	return NewTemplate("commit-based").
		WithSeparator("-").
		AddBlock(NewBlock("version", SemanticBlock{})).
		AddBlock(NewBlock("commit", CommitBlock{}))
}

func BuildNumberedTemplate() Template {
	return NewTemplate("build-numbered").
		WithSeparator("-").
		AddBlock(NewBlock("version", SemanticBlock{})).
		AddBlock(NewBlock("build", BuildNumberBlock{}))
}

// PresetTemplates returns every preset template.
func PresetTemplates() []Template {
	return []Template{
		SemanticTemplate(),
		CalverShortTemplate(),
		CalverLongTemplate(),
		TimestampedTemplate(),
		CommitBasedTemplate(),
		BuildNumberedTemplate(),
	}
}
