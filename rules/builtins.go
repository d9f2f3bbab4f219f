// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package rules

const (
	// LookupPattern matches one entry of the C++ opcode lookup table,
	// { "ADC", &a::ADC, &a::IMM, 2 }, capturing the mnemonic, the two
	// operation references and the cycle count.
	LookupPattern  = `{\s*"(\S+?)",\s*&a::(\S+?),\s*&a::(\S+?),\s*(\S+)\s*}`
	LookupTemplate = `Instruction::new("${1}", Olc6502::${2}, Olc6502::${3}, ${4}), `

	// PalettePattern matches a palette pixel initializer,
	// palScreen[0x00] = olc::Pixel(84, 84, 84);
	PalettePattern  = `palScreen(\[\S+?\])\s*=\s*olc::Pixel\(\s*([0-9]{1,3})\s*,\s*([0-9]{1,3})\s*,\s*([0-9]{1,3})\s*\)\s*;`
	PaletteTemplate = `self.palette_screen${1} = Rgba([${2}, ${3}, ${4}, 255]);`
)

// Lookup returns the rule that converts the opcode lookup table.
func Lookup() *Rule {
	r := MustNew("lookup", LookupPattern, LookupTemplate)
	r.Description = "C++ opcode table entries to Instruction::new entries"
	r.Input, r.Output = "scripts/cpp_lookup_table.txt", "scripts/out.txt"
	return r
}

// Palette returns the rule that converts the palette initializers.
func Palette() *Rule {
	r := MustNew("palette", PalettePattern, PaletteTemplate)
	r.Description = "olc::Pixel palette initializers to Rgba assignments"
	r.Input, r.Output = "palette_data.txt", "palette_out.txt"
	return r
}

// Builtins returns a new registry holding the built-in rules.
func Builtins() *Registry {
	reg := NewRegistry()
	for _, r := range []*Rule{Lookup(), Palette()} {
		reg.Replace(r)
	}
	return reg
}
