package chunkmap

// RequiredAround is the square of chunks within radius (Chebyshev distance) of center.
func RequiredAround(center ChunkCoords, radius int) map[ChunkCoords]struct{} {
	if radius < 0 {
		radius = 0
	}
	side := 2*radius + 1
	out := make(map[ChunkCoords]struct{}, side*side)
	for dx := -radius; dx <= radius; dx++ {
		for dy := -radius; dy <= radius; dy++ {
			out[ChunkCoords{X: center.X + dx, Y: center.Y + dy}] = struct{}{}
		}
	}
	return out
}

// RequiredUnion merges the required squares of several focus chunks.
func RequiredUnion(centers []ChunkCoords, radius int) map[ChunkCoords]struct{} {
	out := map[ChunkCoords]struct{}{}
	for _, c := range centers {
		for k := range RequiredAround(c, radius) {
			out[k] = struct{}{}
		}
	}
	return out
}
