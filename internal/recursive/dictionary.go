package recursive

// BaseDictionary groups rows by the key their path starts from. When the
// anchor row is the origin itself this is exactly the origin key.
func BaseDictionary(rows []Row) map[string][]Row {
	dictionary := make(map[string][]Row)
	for _, row := range rows {
		key := row.FirstPathSegment()
		dictionary[key] = append(dictionary[key], row)
	}
	return dictionary
}
